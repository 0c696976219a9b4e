package message

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{"number", `7`, NumberID(7)},
		{"negative", `-3`, NumberID(-3)},
		{"string", `"abc"`, StringID("abc")},
		{"numeric string stays string", `"42"`, StringID("42")},
		{"min int64", `-9223372036854775808`, NumberID(math.MinInt64)},
		{"above int64", `18446744073709551615`, UintID(math.MaxUint64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)

			out, err := json.Marshal(id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(out))
		})
	}
}

func TestIDRejectsNonScalar(t *testing.T) {
	for _, in := range []string{`1.5`, `true`, `{}`, `[1]`, `18446744073709551616`, `-9223372036854775809`} {
		var id ID
		assert.Error(t, json.Unmarshal([]byte(in), &id), "input %s", in)
	}
}

func TestIDNumericRange(t *testing.T) {
	assert.Equal(t, NumberID(5), UintID(5))

	n, ok := NumberID(-1).Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(-1), n)
	_, ok = NumberID(-1).Uint64()
	assert.False(t, ok)

	_, ok = UintID(math.MaxUint64).Int64()
	assert.False(t, ok)
	u, ok := UintID(math.MaxUint64).Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), u)

	_, ok = StringID("1").Int64()
	assert.False(t, ok)
	assert.Equal(t, "18446744073709551615", UintID(math.MaxUint64).String())
}

func TestRequestNullIDIsNotification(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"hello","id":null}`), &req))
	assert.True(t, req.IsNotification())

	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"hello","id":1}`), &req))
	assert.False(t, req.IsNotification())
}

func TestNewNotificationOmitsID(t *testing.T) {
	req, err := NewNotification("hello", "world")
	require.NoError(t, err)

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"hello","params":"world"}`, string(out))
}

func TestDeserialize(t *testing.T) {
	req, err := NewCall(NumberID(9), "hello", "world")
	require.NoError(t, err)

	var s string
	require.NoError(t, req.Deserialize(&s))
	assert.Equal(t, "world", s)

	var n int
	err = req.Deserialize(&n)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
	assert.Equal(t, req.ID, rpcErr.ID)

	empty, err := NewCall(NumberID(10), "hello", nil)
	require.NoError(t, err)
	err = empty.Deserialize(&s)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"hello","params":null,"id":11}`,
		`{"jsonrpc":"2.0","method":"hello","params": null ,"id":11}`,
	} {
		var decoded Request
		require.NoError(t, json.Unmarshal([]byte(body), &decoded))
		err = decoded.Deserialize(&s)
		require.ErrorAs(t, err, &rpcErr, body)
		assert.Equal(t, CodeInvalidParams, rpcErr.Code)
		assert.Equal(t, NumberID(11), *rpcErr.ID)
	}
}

func TestValidate(t *testing.T) {
	id := NumberID(1)
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"ok", Request{JSONRPC: Version, Method: "m", ID: &id}, false},
		{"bad version", Request{JSONRPC: "1.0", Method: "m", ID: &id}, true},
		{"no method", Request{JSONRPC: Version, ID: &id}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var rpcErr *Error
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
			assert.Equal(t, &id, rpcErr.ID)
		})
	}
}

func TestResponseMarshal(t *testing.T) {
	id := NumberID(1)

	out, err := json.Marshal(&Response{ID: &id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":null,"id":1}`, string(out))

	out, err = json.Marshal(MethodNotFound("bye", nil).Response())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found","data":"bye"},"id":null}`, string(out))
}

func TestResponseInto(t *testing.T) {
	req, err := NewCall(NumberID(1), "hello", nil)
	require.NoError(t, err)

	resp, err := NewResponse(req, "Hello, world!")
	require.NoError(t, err)

	var s string
	require.NoError(t, resp.Into(&s))
	assert.Equal(t, "Hello, world!", s)

	failed := ErrorResponse(req.ID, MethodNotFound("bye", req.ID))
	err = failed.Into(&s)
	var obj *ErrorObject
	require.ErrorAs(t, err, &obj)
	assert.Equal(t, CodeMethodNotFound, obj.Code)
}

func TestErrorResponse(t *testing.T) {
	id := NumberID(3)
	other := StringID("carried")

	tests := []struct {
		name     string
		id       *ID
		err      error
		wantCode int
		wantID   *ID
	}{
		{"rpc error keeps code", &id, InvalidParams(&id, errors.New("bad")), CodeInvalidParams, &id},
		{"wrapped rpc error", &id, errors.Join(errors.New("ctx"), MethodNotFound("x", &id)), CodeMethodNotFound, &id},
		{"carried id when none given", nil, ServerError(&other, "busy"), CodeServerError, &other},
		{"error object kept", &id, &ErrorObject{Code: 17, Message: "app"}, 17, &id},
		{"plain error is internal", &id, errors.New("boom"), CodeInternalError, &id},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ErrorResponse(tt.id, tt.err)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantID, resp.ID)
			assert.Empty(t, resp.Result)
		})
	}
}
