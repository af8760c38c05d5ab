package jsonrpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code. Tool failures are not protocol
// errors and travel inside a successful result instead.
type ErrorCode int

// Codes emitted by the engine.
const (
	// ErrorCodeParseError is sent, with a null id, for a frame that is not a
	// JSON-RPC message.
	ErrorCodeParseError     ErrorCode = -32700
	ErrorCodeMethodNotFound ErrorCode = -32601
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewErrorResponse builds an error response. A nil id is encoded as null.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}
