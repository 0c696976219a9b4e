// Package message defines the JSON-RPC 2.0 envelope exchanged between callers and the router.
//
// A Request names a method, carries optional raw params and an optional ID. A request
// without an ID is a notification. A Response echoes the ID and carries either a result
// or an error object, never both:
//
//	call:          {"jsonrpc":"2.0","method":"hello","params":"world","id":1}
//	notification:  {"jsonrpc":"2.0","method":"hello","params":"world"}
//	success:       {"jsonrpc":"2.0","result":"Hello, world!","id":1}
//	failure:       {"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found","data":"bye"},"id":2}
package message

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Version is the protocol version every envelope carries.
const Version = "2.0"

var errNoParams = errors.New("no params")

// Request is a single JSON-RPC call or notification.
//
// Params stays raw until a service decodes it with Deserialize, so only the service
// that claims the method pays for (and reports) decoding failures.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *ID             `json:"id,omitempty"` // nil for notifications
}

// NewCall builds a request that expects a response.
func NewCall(id ID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, Method: method, Params: raw, ID: &id}, nil
}

// NewNotification builds a request without an ID.
func NewNotification(method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// IsNotification reports whether the request carries no ID.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Deserialize decodes the params into v. Missing, null or mismatched params are
// reported as an InvalidParams error correlated with the request ID.
func (r *Request) Deserialize(v any) error {
	if !r.HasParams() {
		return InvalidParams(r.ID, errNoParams)
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return InvalidParams(r.ID, err)
	}
	return nil
}

// HasParams reports whether the request carries params. An explicit null counts as
// absent.
func (r *Request) HasParams() bool {
	trimmed := bytes.TrimSpace(r.Params)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Validate checks the envelope fields the router relies on.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return InvalidRequest(r.ID, "jsonrpc must be \"2.0\"")
	}
	if r.Method == "" {
		return InvalidRequest(r.ID, "method required")
	}
	return nil
}
