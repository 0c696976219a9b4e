package middleware

import (
	"context"
	"time"

	"jsonrpc-router/message"
)

// Tracker counts dispatches that outlive the call that started them. *sync.WaitGroup
// satisfies it.
type Tracker interface {
	Add(delta int)
	Done()
}

type trackerKey struct{}

// WithTracker returns a context whose timed-out dispatches are counted by t until they
// return. Add is only called while the caller's own dispatch is still running.
func WithTracker(ctx context.Context, t Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

func trackerFrom(ctx context.Context) Tracker {
	t, _ := ctx.Value(trackerKey{}).(Tracker)
	return t
}

// Timeout bounds the time spent dispatching one request. The dispatch keeps running
// in the background after the deadline with its context cancelled, and its result is
// discarded. A Tracker attached with WithTracker counts it until it returns.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			tracker := trackerFrom(ctx)
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *message.Response
				err  error
			}
			done := make(chan result, 1)
			if tracker != nil {
				tracker.Add(1)
			}
			go func() {
				if tracker != nil {
					defer tracker.Done()
				}
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, message.ServerError(req.ID, "request timed out")
			}
		}
	}
}
