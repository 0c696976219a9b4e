package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jsonrpc-router/codec"
	"jsonrpc-router/config"
	"jsonrpc-router/internal/greeter"
	"jsonrpc-router/middleware"
	"jsonrpc-router/registry"
	"jsonrpc-router/server"
	"jsonrpc-router/transport"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a router with the greeter services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "stream listen address; empty disables")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address; empty disables")
	cmd.Flags().StringVar(&cfg.AdvertiseAddr, "advertise", cfg.AdvertiseAddr, "address announced in the registry (default: listen address)")
	cmd.Flags().IntVar(&cfg.Weight, "weight", cfg.Weight, "load balancing weight")
	cmd.Flags().DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout; zero disables")
	cmd.Flags().Float64Var(&cfg.RateLimit, "rate", cfg.RateLimit, "requests per second; zero disables")
	cmd.Flags().IntVar(&cfg.RateBurst, "burst", cfg.RateBurst, "rate limit burst")
	return cmd
}

func buildServer(cfg *config.Config, logger *zap.Logger) (*server.Server[greeter.Data], error) {
	services, err := greeter.Services()
	if err != nil {
		return nil, err
	}

	mws := []middleware.Middleware{middleware.Logging(logger)}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.RequestTimeout))
	}
	// Innermost, so it runs on the goroutine Timeout starts.
	mws = append(mws, middleware.Recover(logger))
	return server.New(services, server.WithLogger(logger), server.WithMiddleware(mws...)), nil
}

// serve runs the configured transports until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if _, err := codec.ParseType(cfg.Codec); err != nil {
		return err
	}
	srv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	node, _ := os.Hostname()
	handler := srv.Bind(greeter.Data{Node: node})

	errc := make(chan error, 2)
	var listener *transport.Listener
	if cfg.Addr != "" {
		opts := []transport.ListenerOption{transport.WithLogger(logger.Named("stream"))}
		if len(cfg.EtcdEndpoints) > 0 {
			reg, err := registry.NewEtcd(cfg.EtcdEndpoints, cfg.EtcdDialTimeout, logger.Named("registry"))
			if err != nil {
				return err
			}
			defer reg.Close()
			instance := registry.Instance{Addr: cfg.AdvertiseAddr, Weight: cfg.Weight, Codec: cfg.Codec}
			opts = append(opts, transport.WithRegistry(reg, cfg.Service, instance, cfg.RegistryTTL))
		}

		ln, err := net.Listen(cfg.Network, cfg.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Addr, err)
		}
		listener = transport.NewListener(handler, opts...)
		go func() { errc <- listener.Serve(ln) }()
	}

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           transport.HTTPHandler(handler, logger.Named("http")),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- err
				return
			}
			errc <- nil
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
		logger.Error("transport stopped", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if listener != nil {
		if err := listener.Shutdown(shutdownCtx); err != nil {
			logger.Warn("stream shutdown", zap.Error(err))
		}
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}
	return runErr
}
