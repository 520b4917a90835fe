package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClassifiesMessages(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"ping"}`, TypeRequest},
		{`{"jsonrpc":"2.0","id":"a","method":"tools/list","params":{}}`, TypeRequest},
		{`{"jsonrpc":"2.0","method":"notifications/initialized"}`, TypeNotification},
		{`{"jsonrpc":"2.0","id":1,"result":{}}`, TypeResponse},
		{`  {"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"x"}}` + "\n", TypeResponse},
	}
	for _, tt := range tests {
		m, err := Decode(Message(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, m.Type(), tt.raw)
		if tt.want == TypeResponse {
			assert.Nil(t, m.AsRequest())
		} else {
			assert.Equal(t, m.Method, m.AsRequest().Method)
		}
	}
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		raw  string
		code ErrorCode
	}{
		{`{"jsonrpc":"2.0","method":`, ErrorCodeParseError},
		{``, ErrorCodeParseError},
		{`not json`, ErrorCodeParseError},
		{`{"jsonrpc":"1.0","id":1,"method":"ping"}`, ErrorCodeInvalidRequest},
		{`{"id":1,"method":"ping"}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":1}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`, ErrorCodeInvalidRequest},
		{`[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":{},"method":"ping"}`, ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		_, err := Decode(Message(tt.raw))
		require.Error(t, err, tt.raw)
		assert.Equal(t, tt.code == ErrorCodeParseError, errors.Is(err, ErrParse), tt.raw)

		res := Rejection(err)
		require.NotNil(t, res.Error)
		assert.Equal(t, tt.code, res.Error.Code, tt.raw)

		out, err := json.Marshal(res)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"id":null`)
	}
}

func TestResponsesEchoID(t *testing.T) {
	m, err := Decode(Message(`{"jsonrpc":"2.0","id":"req-7","method":"ping"}`))
	require.NoError(t, err)

	res, err := NewResultResponse(m.ID, map[string]any{})
	require.NoError(t, err)
	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"req-7","result":{}}`, string(out))

	out, err = json.Marshal(NewErrorResponse(m.ID, ErrorCodeMethodNotFound, "method not found", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"req-7","error":{"code":-32601,"message":"method not found"}}`, string(out))

	_, err = NewResultResponse(m.ID, func() {})
	assert.Error(t, err)
}
