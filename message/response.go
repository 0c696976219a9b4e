package message

import (
	"encoding/json"
)

// Response is the result envelope for one request. Exactly one of Result and Error is
// meaningful; Error wins when both are set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      *ID             `json:"id"` // null when the request had none
}

// NewResponse builds a successful response correlated with req.
func NewResponse(req *Request, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, Internal(req.ID, err)
	}
	return &Response{JSONRPC: Version, Result: raw, ID: req.ID}, nil
}

// Into decodes the result into v, or returns the error object of a failed call.
func (r *Response) Into(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 || v == nil {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// MarshalJSON writes either "result" or "error". A success without a result is
// written as "result": null so the member is never missing.
func (r Response) MarshalJSON() ([]byte, error) {
	version := r.JSONRPC
	if version == "" {
		version = Version
	}
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string       `json:"jsonrpc"`
			Error   *ErrorObject `json:"error"`
			ID      *ID          `json:"id"`
		}{version, r.Error, r.ID})
	}
	result := r.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		ID      *ID             `json:"id"`
	}{version, result, r.ID})
}
