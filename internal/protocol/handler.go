package protocol

import (
	"context"
	"fmt"
)

// rawHandler is the type-erased form every registered handler reduces
// to: given a request payload, produce a response message type and
// its encoded payload, or an error to be classified onto an Error
// frame.
type rawHandler func(ctx context.Context, payload []byte) (responseType uint16, responsePayload []byte, err error)

// Registry maps message_type to the handler that processes it. A
// Registry is built once at daemon startup and is read-only for the
// lifetime of every connection that dispatches through it, so no
// locking is needed around lookups.
type Registry struct {
	handlers map[uint16]rawHandler
}

// NewRegistry returns an empty Registry ready for RegisterHandler calls.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint16]rawHandler)}
}

// RegisterHandler binds a typed handler function to a request message
// type, producing responses tagged with responseType. Req and Res are
// decoded/encoded with the package payload codec.
func RegisterHandler[Req any, Res any](reg *Registry, requestType, responseType uint16, fn func(ctx context.Context, req *Req) (*Res, error)) {
	reg.handlers[requestType] = func(ctx context.Context, payload []byte) (uint16, []byte, error) {
		req := new(Req)
		if err := Decode(payload, req); err != nil {
			return 0, nil, err
		}
		res, err := fn(ctx, req)
		if err != nil {
			return 0, nil, err
		}
		out, err := Encode(res)
		if err != nil {
			return 0, nil, err
		}
		return responseType, out, nil
	}
}

// Dispatch looks up the handler for frame's message type, runs it, and
// returns the response frame. The response's Sequence always equals
// frame's Sequence. A missing handler, a decode failure, or a handler
// error all produce an Error frame rather than a Go error return --
// only a condition that should never reach the wire (there is none in
// normal operation) would justify bubbling an error out of Dispatch.
// A handler that panics is recovered and answered with an Internal
// Error frame.
func (r *Registry) Dispatch(ctx context.Context, frame Frame) (resp Frame) {
	handler, ok := r.handlers[frame.MessageType]
	if !ok {
		return r.errorFrame(frame.Sequence, CodeUnknownMessageType,
			fmt.Sprintf("no handler for message type %d", frame.MessageType), "")
	}

	defer func() {
		if p := recover(); p != nil {
			resp = r.errorFrame(frame.Sequence, CodeInternal, fmt.Sprintf("handler panicked: %v", p), "")
		}
	}()

	responseType, payload, err := handler(ctx, frame.Payload)
	if err != nil {
		code, message, details := ClassifyError(err)
		return r.errorFrame(frame.Sequence, code, message, details)
	}

	return NewFrame(responseType, frame.Sequence, FlagHasPayload, payload)
}

func (r *Registry) errorFrame(sequence uint32, code ErrorCode, message, details string) Frame {
	payload, err := Encode(ErrorPayload{Code: code, Message: message, Details: details})
	if err != nil {
		// Encoding ErrorPayload itself should never fail; fall back to a
		// minimal payload so the client still gets a well-formed frame.
		payload = []byte(`{"code":0,"message":"internal error encoding failure"}`)
	}
	return NewFrame(MsgError, sequence, FlagHasPayload, payload)
}
