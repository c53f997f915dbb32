package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexsock/nexsockd/internal/config"
	"github.com/nexsock/nexsockd/internal/logging"
	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/nexsock/nexsockd/internal/supervisor"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Server owns the IPC listener, the handler registry, and the
// supervisor tree that runs the accept loop and the OS-process reaper
// as sibling suture services.
type Server struct {
	cfg  config.IPCConfig
	tree *suture.Supervisor
	reg  *protocol.Registry
	sup  *supervisor.Supervisor
}

// NewServer wires svc's handler registry into a fresh IPC server and
// keeps svc's supervisor so Run can add its OS-process reaper to the
// same supervision tree as the listener.
func NewServer(cfg config.IPCConfig, svc *Services) *Server {
	return &Server{
		cfg: cfg,
		reg: NewRegistry(svc),
		sup: svc.Supervisor,
	}
}

// Run starts the listener and the reaper under a suture tree, and
// blocks until SIGINT/SIGTERM triggers a graceful shutdown: stop
// accepting, await the supervisor's teardown of every running
// service, remove the socket file, then return.
func (s *Server) Run(ctx context.Context) error {
	ln, err := Listen(s.cfg)
	if err != nil {
		return err
	}

	handler := &sutureslog.Handler{Logger: slog.New(logging.NewSlogHandler())}
	root := suture.New("nexsockd", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	root.Add(&listenerService{
		ln: ln,
		handle: func(ctx context.Context, conn net.Conn) {
			s.handleConn(ctx, conn)
		},
		onError: func(err error) {
			logging.Ctx(ctx).Warn().Err(err).Msg("ipc accept loop error")
		},
	})
	root.Add(&reaperService{sup: s.sup})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := root.ServeBackground(runCtx)

	select {
	case sig := <-sigCh:
		logging.Ctx(ctx).Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
	}

	cancel()
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Ctx(ctx).Warn().Err(err).Msg("supervision tree reported an error during shutdown")
		}
	}

	s.sup.Shutdown(context.Background())
	CleanupSocket(s.cfg)
	return nil
}

// handleConn drives process_message in a loop over one connection
// until the peer closes or a fatal I/O error occurs. A panicking
// handler is converted to an Internal error response by the registry's
// Dispatch; processOne recovers and logs any other panic so the loop
// goes on.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connCtx := logging.ContextWithNewCorrelationID(ctx)
	transport := protocol.NewTransport(conn, conn, s.reg)

	for {
		if err := s.processOne(connCtx, transport); err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Ctx(connCtx).Debug().Err(err).Msg("connection closed")
			}
			return
		}
	}
}

func (s *Server) processOne(ctx context.Context, transport *protocol.Transport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Interface("panic", r).Msg("recovered panic while processing a message")
			err = nil
		}
	}()
	return transport.ProcessMessage(ctx)
}

// reaperService runs the supervisor's periodic reaper as its own
// suture-supervised service.
type reaperService struct {
	sup *supervisor.Supervisor
}

func (r *reaperService) Serve(ctx context.Context) error {
	r.sup.RunReaper(ctx)
	return ctx.Err()
}
