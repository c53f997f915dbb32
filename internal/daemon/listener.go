// Package daemon wires together the registry, supervisor, managers and
// protocol transport into the IPC server: a single listener (Unix
// domain socket on POSIX, loopback TCP otherwise), one task per
// accepted connection, and signal-driven graceful shutdown.
package daemon

import (
	"context"
	"net"
	"os"
	"runtime"

	"github.com/nexsock/nexsockd/internal/config"
)

// Listen opens the configured IPC listener, removing any stale socket
// file first when binding a Unix domain socket.
func Listen(cfg config.IPCConfig) (net.Listener, error) {
	network := cfg.Network
	if network == "" {
		if runtime.GOOS == "windows" {
			network = "tcp"
		} else {
			network = "unix"
		}
	}

	switch network {
	case "unix":
		if err := removeStaleSocket(cfg.SocketPath); err != nil {
			return nil, err
		}
		return net.Listen("unix", cfg.SocketPath)
	case "tcp":
		return net.Listen("tcp", cfg.TCPAddr)
	default:
		return nil, &net.AddrError{Err: "unsupported ipc network", Addr: network}
	}
}

func removeStaleSocket(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CleanupSocket removes the Unix domain socket file at path, if any.
// Called once on final shutdown after the listener has closed.
func CleanupSocket(cfg config.IPCConfig) {
	if cfg.Network == "tcp" || (cfg.Network == "" && runtime.GOOS == "windows") {
		return
	}
	_ = os.Remove(cfg.SocketPath)
}

// listenerService adapts a net.Listener + connection handler into a
// suture.Service: Serve blocks accepting connections until ctx is
// canceled, at which point it closes the listener to unblock Accept.
type listenerService struct {
	ln      net.Listener
	handle  func(ctx context.Context, conn net.Conn)
	onError func(err error)
}

func (s *listenerService) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				if s.onError != nil {
					s.onError(err)
				}
				return err
			}
		}
		go s.handle(ctx, conn)
	}
}
