package protocol

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportSendReceiveFrame(t *testing.T) {
	var buf bytes.Buffer
	transport := NewTransport(&buf, &buf, nil)

	frame := NewFrame(MsgListServices, 0xDEADBEEF, FlagNone, []byte(`{}`))
	require.NoError(t, transport.SendFrame(frame))

	received, err := transport.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.MessageType, received.MessageType)
	assert.Equal(t, frame.Sequence, received.Sequence)
	assert.Equal(t, frame.Payload, received.Payload)
}

func TestTransportProcessMessageOverPipe(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	reg := NewRegistry()
	RegisterHandler(reg, MsgListServices, MsgSuccess, func(ctx context.Context, req *Empty) (*ListServicesResponse, error) {
		return &ListServicesResponse{Services: []ServiceSummary{{ID: 1, Name: "alpha"}}}, nil
	})

	server := NewTransport(serverConn, serverConn, reg)
	client := NewTransport(clientConn, clientConn, nil)

	done := make(chan error, 1)
	go func() {
		done <- server.ProcessMessage(context.Background())
	}()

	req := NewFrame(MsgListServices, 0xDEADBEEF, FlagNone, nil)
	require.NoError(t, client.SendFrame(req))

	resp, err := client.ReceiveFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, MsgSuccess, resp.MessageType)
	assert.EqualValues(t, 0xDEADBEEF, resp.Sequence)

	var list ListServicesResponse
	require.NoError(t, Decode(resp.Payload, &list))
	require.Len(t, list.Services, 1)
	assert.Equal(t, "alpha", list.Services[0].Name)
}
