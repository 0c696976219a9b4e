// Package transport carries JSON-RPC envelopes between peers and a router.
//
// Two transports are provided:
//
//	Listener     framed stream (TCP) with the protocol package header; one reader goroutine
//	             per connection, one goroutine per request, responses written under a
//	             per-connection lock and matched to requests by frame seq
//	HTTPHandler  one request per POST body; 204 when no response is due
//
// Both decode and validate the envelope, then hand the request to a HandlerFunc
// (typically server.Server.Bind). A nil response means nothing is written back.
package transport

import (
	"bytes"
	"context"
	"encoding/json"

	"jsonrpc-router/codec"
	"jsonrpc-router/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

// decodeRequest turns a body into a validated request, or into the error response
// that must be sent instead.
func decodeRequest(c codec.Codec, body []byte) (*message.Request, *message.Response) {
	if c.Type() == codec.TypeJSON && isBatch(body) {
		return nil, message.InvalidRequest(nil, "batch requests are not supported").Response()
	}

	var req message.Request
	if err := c.Decode(body, &req); err != nil {
		if c.Type() == codec.TypeJSON && json.Valid(body) {
			return nil, message.InvalidRequest(nil, err.Error()).Response()
		}
		return nil, message.ParseError(err).Response()
	}
	if err := req.Validate(); err != nil {
		return nil, message.ErrorResponse(req.ID, err)
	}
	return &req, nil
}

func isBatch(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
