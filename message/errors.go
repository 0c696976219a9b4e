package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes. CodeServerError is the first code of the
// implementation-defined range and is used for router-level refusals.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// ErrorObject is the wire form of a failure.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc: %s (%d)", e.Message, e.Code)
}

// Error is a failure raised while dispatching a request. It carries the ID of the
// request it belongs to so it can always be turned into a correlated Response.
type Error struct {
	Code    int
	Message string
	Data    any
	ID      *ID
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Object converts e to its wire form. Data that cannot be encoded is dropped.
func (e *Error) Object() *ErrorObject {
	obj := &ErrorObject{Code: e.Code, Message: e.Message}
	if e.Data != nil {
		if raw, err := json.Marshal(e.Data); err == nil {
			obj.Data = raw
		}
	}
	return obj
}

// Response builds the error response for the request that raised e.
func (e *Error) Response() *Response {
	return &Response{JSONRPC: Version, Error: e.Object(), ID: e.ID}
}

// MethodNotFound reports that no service claimed the method.
func MethodNotFound(name string, id *ID) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: name, ID: id}
}

// InvalidParams reports params that could not be decoded into the expected shape.
func InvalidParams(id *ID, err error) *Error {
	e := &Error{Code: CodeInvalidParams, Message: "Invalid params", ID: id, Err: err}
	if err != nil {
		e.Data = err.Error()
	}
	return e
}

// InvalidRequest reports an envelope that is not a valid request.
func InvalidRequest(id *ID, reason string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid Request", Data: reason, ID: id}
}

// ParseError reports a payload that is not valid JSON. The ID is unknown by definition.
func ParseError(err error) *Error {
	e := &Error{Code: CodeParseError, Message: "Parse error", Err: err}
	if err != nil {
		e.Data = err.Error()
	}
	return e
}

// Internal reports a failure inside a service.
func Internal(id *ID, err error) *Error {
	e := &Error{Code: CodeInternalError, Message: "Internal error", ID: id, Err: err}
	if err != nil {
		e.Data = err.Error()
	}
	return e
}

// ServerError reports a refusal by the router itself, such as a timeout or rate limit.
func ServerError(id *ID, message string) *Error {
	return &Error{Code: CodeServerError, Message: message, ID: id}
}

// ErrorResponse maps any error to an error response correlated with id.
//
//	*Error        -> its code, message and data (its own ID when id is nil)
//	*ErrorObject  -> copied as is
//	anything else -> CodeInternalError with err.Error() as message
func ErrorResponse(id *ID, err error) *Response {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		if id == nil {
			id = rpcErr.ID
		}
		return &Response{JSONRPC: Version, Error: rpcErr.Object(), ID: id}
	}
	var obj *ErrorObject
	if errors.As(err, &obj) {
		cp := *obj
		return &Response{JSONRPC: Version, Error: &cp, ID: id}
	}
	return &Response{
		JSONRPC: Version,
		Error:   &ErrorObject{Code: CodeInternalError, Message: err.Error()},
		ID:      id,
	}
}
