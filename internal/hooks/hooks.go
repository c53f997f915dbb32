// Package hooks implements the pre-command hook bus: a best-effort
// notification fan-out invoked before handler dispatch. Hooks cannot
// veto a command; any hook error is logged and swallowed.
package hooks

import (
	"context"

	"github.com/nexsock/nexsockd/internal/logging"
	"github.com/nexsock/nexsockd/internal/protocol"
)

// Hook is invoked with the inbound message type and, for
// MsgStartService and MsgRestartService, the decoded start payload
// (nil for every other message type). A returned error is logged; it never vetoes the
// command.
type Hook func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error

// Bus fans a pre-command notification out to every registered hook.
type Bus struct {
	hooks []Hook
}

func NewBus() *Bus {
	return &Bus{}
}

// Register adds h to the bus. Registration order is invocation order.
func (b *Bus) Register(h Hook) {
	b.hooks = append(b.hooks, h)
}

// Fire invokes every registered hook in order. A hook that panics or
// returns an error is logged and otherwise ignored; dispatch always
// proceeds regardless of hook outcome.
func (b *Bus) Fire(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) {
	for _, h := range b.hooks {
		b.runOne(ctx, h, messageType, startPayload)
	}
}

func (b *Bus) runOne(ctx context.Context, h Hook, messageType uint16, startPayload *protocol.StartServicePayload) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Warn().Interface("panic", r).Uint16("message_type", messageType).Msg("pre-command hook panicked")
		}
	}()
	if err := h(ctx, messageType, startPayload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Uint16("message_type", messageType).Msg("pre-command hook failed")
	}
}
