package jsonrpc

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Message is one raw JSON-RPC message as read off a connection.
type Message []byte

// Message classes reported by AnyMessage.Type.
const (
	TypeRequest      = "request"
	TypeNotification = "notification"
	TypeResponse     = "response"
)

var (
	// ErrParse marks input that is not JSON at all.
	ErrParse = errors.New("parse error")
	// ErrInvalidRequest marks JSON that is not a JSON-RPC 2.0 message.
	ErrInvalidRequest = errors.New("invalid request")
)

// AnyMessage is a decoded request, notification or response.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request is a request, or a notification when ID is nil.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response is a JSON-RPC response. ID is always emitted and encodes as null
// when the request id could not be read.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Decode parses msg. Failures are marked ErrParse or ErrInvalidRequest; see
// Rejection.
func Decode(msg Message) (*AnyMessage, error) {
	msg = bytes.TrimSpace(msg)
	if !json.Valid(msg) {
		return nil, errors.Mark(errors.New("message is not valid JSON"), ErrParse)
	}
	var m AnyMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, errors.Mark(err, ErrInvalidRequest)
	}
	return &m, nil
}

// Rejection is the response to a message Decode refused. Its id is null: a
// message that failed to decode has no id the peer could rely on.
func Rejection(err error) *Response {
	if errors.Is(err, ErrParse) {
		return NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil)
	}
	return NewErrorResponse(nil, ErrorCodeInvalidRequest, "invalid request", nil)
}

// NewResultResponse builds a successful response carrying result.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "marshal result")
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error response. data is attached verbatim; nil
// omits it.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// UnmarshalJSON enforces JSON-RPC 2.0 framing: the version tag, and requests
// and responses never mixing their fields.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type plain AnyMessage
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decode message")
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return errors.Newf("jsonrpc version %q, want %q", raw.JSONRPCVersion, ProtocolVersion)
	}
	hasResult, hasError := len(raw.Result) > 0, raw.Error != nil
	switch {
	case raw.Method != "" && (hasResult || hasError):
		return errors.New("request carries result or error")
	case raw.Method == "" && hasResult == hasError:
		return errors.New("response needs exactly one of result and error")
	}

	*m = AnyMessage(raw)
	return nil
}

// Type classifies the message as TypeRequest, TypeNotification or
// TypeResponse.
func (m *AnyMessage) Type() string {
	switch {
	case m.Method == "":
		return TypeResponse
	case m.ID == nil:
		return TypeNotification
	default:
		return TypeRequest
	}
}

// AsRequest returns the message as a Request, or nil for responses.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}
