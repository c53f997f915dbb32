package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nexsock/nexsockd/internal/config"
	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/nexsock/nexsockd/internal/registry"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int64 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return int64(ln.Addr().(*net.TCPAddr).Port)
}

func testConfig() config.SupervisorConfig {
	return config.SupervisorConfig{
		GracefulStopTimeout: 200 * time.Millisecond,
		HardKillTimeout:     200 * time.Millisecond,
		PortPollInterval:    20 * time.Millisecond,
		PortPollAttempts:    10,
		StartupDeadline:     2 * time.Second,
		ReaperInterval:      50 * time.Millisecond,
		StdoutRingCapacity:  100,
	}
}

type harness struct {
	db       *registry.DB
	services *registry.ServiceRepository
	sup      *Supervisor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := registry.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	services := registry.NewServiceRepository(db)
	return &harness{db: db, services: services, sup: New(services, testConfig())}
}

func (h *harness) addService(t *testing.T, name, runCommand string, port int64) int64 {
	t.Helper()
	configs := registry.NewConfigRepository(h.db)
	cfg := &registry.Config{Filename: "env", Format: protocol.ConfigFormatEnv, RunCommand: runCommand}
	require.NoError(t, configs.Save(context.Background(), cfg))

	svc := &registry.Service{
		ConfigID: &cfg.ID,
		Name:     name,
		RepoURL:  "https://example.invalid/repo.git",
		Port:     port,
		RepoPath: t.TempDir(),
		Status:   protocol.StateStopped,
	}
	require.NoError(t, h.services.Save(context.Background(), svc))
	return svc.ID
}

func TestStartAndStop(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-a", "sleep 30", port)

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(id), nil))

	state, err := h.sup.Status(ctx, protocol.RefByID(id))
	require.NoError(t, err)
	require.Equal(t, protocol.StateRunning, state)

	require.NoError(t, h.sup.Stop(ctx, protocol.RefByID(id)))

	state, err = h.sup.Status(ctx, protocol.RefByID(id))
	require.NoError(t, err)
	require.Equal(t, protocol.StateStopped, state)
}

func TestStartAlreadyRunningFails(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-b", "sleep 30", port)

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(id), nil))
	t.Cleanup(func() { _ = h.sup.Stop(ctx, protocol.RefByID(id)) })

	err := h.sup.Start(ctx, protocol.RefByID(id), nil)
	require.Error(t, err)
	var coder protocol.Coder
	require.ErrorAs(t, err, &coder)
	require.Equal(t, protocol.CodePreconditionFailed, coder.Code())
}

func TestStartWithoutRunCommandFails(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-c", "", port)

	err := h.sup.Start(context.Background(), protocol.RefByID(id), nil)
	require.Error(t, err)
	var coder protocol.Coder
	require.ErrorAs(t, err, &coder)
	require.Equal(t, protocol.CodePreconditionFailed, coder.Code())
}

func TestStopOfUnstartedServiceSucceeds(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-d", "sleep 30", port)

	require.NoError(t, h.sup.Stop(context.Background(), protocol.RefByID(id)))
}

func TestExitedProcessReconcilesToStopped(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-e", "true", port)

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(id), nil))

	require.Eventually(t, func() bool {
		state, err := h.sup.Status(ctx, protocol.RefByID(id))
		return err == nil && state == protocol.StateStopped
	}, time.Second, 10*time.Millisecond)
}

func TestExitedWithFailureReconcilesToFailed(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-f", "false", port)

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(id), nil))

	require.Eventually(t, func() bool {
		state, err := h.sup.Status(ctx, protocol.RefByID(id))
		return err == nil && state == protocol.StateFailed
	}, time.Second, 10*time.Millisecond)
}

func TestStdoutCapturesOutput(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-g", "echo hello; echo world", port)

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(id), nil))
	t.Cleanup(func() { _ = h.sup.Stop(ctx, protocol.RefByID(id)) })

	require.Eventually(t, func() bool {
		lines, ok := h.sup.Stdout(id, 0)
		return ok && len(lines) >= 2
	}, time.Second, 10*time.Millisecond)

	lines, ok := h.sup.Stdout(id, 0)
	require.True(t, ok)
	require.Equal(t, "hello", lines[0].Line)
	require.Equal(t, "world", lines[1].Line)
}

func TestReapClearsFailedEntries(t *testing.T) {
	h := newHarness(t)
	port := freePort(t)
	id := h.addService(t, "svc-h", "false", port)

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(id), nil))

	require.Eventually(t, func() bool {
		h.sup.Reap(ctx)
		h.sup.mu.RLock()
		_, ok := h.sup.processes[id]
		h.sup.mu.RUnlock()
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestShutdownStopsAllRunningServices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	idA := h.addService(t, "svc-i", "sleep 30", freePort(t))
	idB := h.addService(t, "svc-j", "sleep 30", freePort(t))
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(idA), nil))
	require.NoError(t, h.sup.Start(ctx, protocol.RefByID(idB), nil))

	h.sup.Shutdown(ctx)

	h.sup.mu.RLock()
	defer h.sup.mu.RUnlock()
	require.Empty(t, h.sup.processes)
}
