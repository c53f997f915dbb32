// Package ipcclient is the CLI's half of the control-plane wire
// protocol: it dials the daemon's configured endpoint and drives
// request/response pairs over a protocol.Transport, decoding Error
// frames back into a *protocol.ProtocolError the caller can branch on.
package ipcclient

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync/atomic"

	"github.com/nexsock/nexsockd/internal/config"
	"github.com/nexsock/nexsockd/internal/protocol"
)

// Client owns one connection to a running nexsockd daemon.
type Client struct {
	conn      net.Conn
	transport *protocol.Transport
	seq       atomic.Uint32
}

// Dial connects to the daemon addressed by cfg, using the same
// network-selection rule the daemon's listener applies.
func Dial(ctx context.Context, cfg config.IPCConfig) (*Client, error) {
	network := cfg.Network
	if network == "" {
		if runtime.GOOS == "windows" {
			network = "tcp"
		} else {
			network = "unix"
		}
	}

	addr := cfg.TCPAddr
	if network == "unix" {
		addr = cfg.SocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("connect to nexsockd at %s %s: %w", network, addr, err)
	}

	return &Client{
		conn:      conn,
		transport: protocol.NewTransport(conn, conn, nil),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request of messageType carrying req (nil for an
// Empty-bodied request), then decodes the response into resp (nil to
// discard the body). An Error-typed response frame is turned into the
// *protocol.ProtocolError it carries.
func (c *Client) Call(ctx context.Context, messageType uint16, req any, resp any) error {
	var payload []byte
	if req != nil {
		encoded, err := protocol.Encode(req)
		if err != nil {
			return err
		}
		payload = encoded
	}

	seq := c.seq.Add(1)
	if err := c.transport.SendFrame(protocol.NewFrame(messageType, seq, protocol.FlagNone, payload)); err != nil {
		return err
	}

	frame, err := c.transport.ReceiveFrame()
	if err != nil {
		return err
	}

	if frame.MessageType == protocol.MsgError {
		var errPayload protocol.ErrorPayload
		if decErr := protocol.Decode(frame.Payload, &errPayload); decErr != nil {
			return decErr
		}
		return protocol.WrapError(errPayload.Code, errPayload.Message, nil).WithDetails(errPayload.Details)
	}

	if resp == nil || !frame.HasPayload() {
		return nil
	}
	return protocol.Decode(frame.Payload, resp)
}
