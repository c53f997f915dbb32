package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidData marks frame decode failures: truncated buffers, bad
// magic, or a payload_length that overruns the available bytes.
var ErrInvalidData = errors.New("protocol: invalid data")

// ErrorCode classifies a failure for the wire ErrorPayload.code field.
// Values mirror the error kinds a client can branch on.
type ErrorCode uint8

const (
	CodeInternal ErrorCode = iota
	CodeNotFound
	CodeAlreadyExists
	CodeInvalidArgument
	CodePreconditionFailed
	CodeIO
	CodeSerialization
	CodeDeserialization
	CodeExternal
	CodeUnknownMessageType
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodePreconditionFailed:
		return "PreconditionFailed"
	case CodeIO:
		return "Io"
	case CodeSerialization:
		return "Serialization"
	case CodeDeserialization:
		return "Deserialization"
	case CodeExternal:
		return "External"
	case CodeUnknownMessageType:
		return "UnknownMessageType"
	default:
		return "Internal"
	}
}

// Coder is implemented by errors that carry an explicit ErrorCode.
// The handler registry uses errors.As against this interface to pick
// the ErrorPayload.code; errors that don't implement it classify as
// CodeInternal.
type Coder interface {
	Code() ErrorCode
}

// ProtocolError is an error annotated with the ErrorCode it should
// surface as on the wire, plus optional free-form details.
type ProtocolError struct {
	code    ErrorCode
	message string
	details string
	cause   error
}

// NewError builds a ProtocolError with the given code and message.
func NewError(code ErrorCode, message string) *ProtocolError {
	return &ProtocolError{code: code, message: message}
}

// WrapError builds a ProtocolError around an underlying cause,
// preserving it for errors.Unwrap.
func WrapError(code ErrorCode, message string, cause error) *ProtocolError {
	return &ProtocolError{code: code, message: message, cause: cause}
}

func (e *ProtocolError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *ProtocolError) Unwrap() error {
	return e.cause
}

func (e *ProtocolError) Code() ErrorCode {
	return e.code
}

// WithDetails attaches free-form diagnostic text and returns e.
func (e *ProtocolError) WithDetails(details string) *ProtocolError {
	e.details = details
	return e
}

// ClassifyError turns an arbitrary error into the wire ErrorPayload it
// should produce. Errors implementing Coder keep their own code;
// everything else classifies as CodeInternal.
func ClassifyError(err error) (ErrorCode, string, string) {
	var coder Coder
	if errors.As(err, &coder) {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			return pe.code, pe.message, pe.details
		}
		return coder.Code(), err.Error(), ""
	}
	return CodeInternal, err.Error(), ""
}
