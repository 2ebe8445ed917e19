package ocpp

import "fmt"

// ErrorCode OCPP-J RPC framework error code, sent in the third field of a CallError.
type ErrorCode string

const (
	GenericError                  ErrorCode = "GenericError"
	FormatViolation               ErrorCode = "FormatViolation"
	NotImplemented                ErrorCode = "NotImplemented"
	NotSupported                  ErrorCode = "NotSupported"
	InternalError                 ErrorCode = "InternalError"
	OccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	PropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ProtocolError                 ErrorCode = "ProtocolError"
	SecurityError                 ErrorCode = "SecurityError"
	TypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
)

// Error is a protocol-level failure, either received as a CallError from the
// central system or raised locally while decoding an inbound frame.
type Error struct {
	Code        ErrorCode
	Description string
	MessageId   string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func NewError(code ErrorCode, description string, messageId string) *Error {
	return &Error{Code: code, Description: description, MessageId: messageId}
}
