package transport

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"jsonrpc-router/codec"
	"jsonrpc-router/protocol"
)

type httpHandler struct {
	handler HandlerFunc
	logger  *zap.Logger
}

// HTTPHandler serves JSON-RPC over HTTP. Requests must be POSTed; a Content-Type other
// than application/json is refused. Transport failures use HTTP status codes, JSON-RPC
// failures are 200 responses carrying an error object.
func HTTPHandler(handler HandlerFunc, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpHandler{handler: handler, logger: logger}
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "JSON-RPC requires POST method", http.StatusMethodNotAllowed)
		return
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(protocol.MaxBodyLen)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, resp := decodeRequest(codec.JSONCodec{}, body)
	if req != nil {
		resp = h.handler(r.Context(), req)
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Debug("write response", zap.Error(err))
	}
}
