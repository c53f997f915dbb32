package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/stretchr/testify/require"
)

func TestFireInvokesAllHooksInOrder(t *testing.T) {
	bus := NewBus()
	var order []int

	bus.Register(func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error {
		order = append(order, 1)
		return nil
	})
	bus.Register(func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error {
		order = append(order, 2)
		return nil
	})

	bus.Fire(context.Background(), protocol.MsgStartService, nil)
	require.Equal(t, []int{1, 2}, order)
}

func TestFireSwallowsHookError(t *testing.T) {
	bus := NewBus()
	called := false

	bus.Register(func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error {
		return errors.New("boom")
	})
	bus.Register(func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error {
		called = true
		return nil
	})

	require.NotPanics(t, func() {
		bus.Fire(context.Background(), protocol.MsgStartService, nil)
	})
	require.True(t, called)
}

func TestFireRecoversFromPanic(t *testing.T) {
	bus := NewBus()
	called := false

	bus.Register(func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error {
		panic("exploded")
	})
	bus.Register(func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error {
		called = true
		return nil
	})

	require.NotPanics(t, func() {
		bus.Fire(context.Background(), protocol.MsgStartService, nil)
	})
	require.True(t, called)
}

func TestFirePassesStartPayload(t *testing.T) {
	bus := NewBus()
	var seen *protocol.StartServicePayload

	bus.Register(func(ctx context.Context, messageType uint16, startPayload *protocol.StartServicePayload) error {
		seen = startPayload
		return nil
	})

	payload := &protocol.StartServicePayload{ServiceRef: protocol.RefByID(1)}
	bus.Fire(context.Background(), protocol.MsgStartService, payload)
	require.Same(t, payload, seen)
}
