package supervisor

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nexsock/nexsockd/internal/config"
	"github.com/nexsock/nexsockd/internal/logging"
	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/nexsock/nexsockd/internal/registry"
)

// Supervisor owns the in-memory map of running service processes. The
// map is the authoritative source of runtime state; the registry's
// persisted status column is advisory and is updated best-effort
// alongside state transitions.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[int64]*RunningProcess

	services *registry.ServiceRepository
	cfg      config.SupervisorConfig
}

// New builds a Supervisor over the given service repository, which it
// uses both to resolve refs and to load each service's run command and
// working directory.
func New(services *registry.ServiceRepository, cfg config.SupervisorConfig) *Supervisor {
	return &Supervisor{
		processes: make(map[int64]*RunningProcess),
		services:  services,
		cfg:       cfg,
	}
}

func portFree(port int64) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.FormatInt(port, 10)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// Start resolves ref, verifies the port is advisorily free, reserves
// the map slot under the Starting state to close the concurrent-start
// race, then spawns the child outside the lock.
func (s *Supervisor) Start(ctx context.Context, ref protocol.ServiceRef, env map[string]string) error {
	svc, err := s.services.GetByRef(ctx, ref)
	if err != nil {
		return err
	}

	if !portFree(svc.Port) {
		return protocol.NewError(protocol.CodePreconditionFailed, "port in use")
	}

	if err := s.reserveStartingSlot(svc.ID); err != nil {
		return err
	}

	detailed, err := s.services.GetDetailedByRef(ctx, protocol.RefByID(svc.ID))
	if err != nil {
		s.removeEntry(svc.ID)
		return err
	}
	if detailed.Config == nil || detailed.Config.RunCommand == "" {
		s.removeEntry(svc.ID)
		return protocol.NewError(protocol.CodePreconditionFailed, "no run command")
	}

	rp, err := spawn(svc.ID, detailed.Config.RunCommand, svc.RepoPath, env, s.cfg.StdoutRingCapacity)
	if err != nil {
		s.removeEntry(svc.ID)
		s.markPersistedStatus(ctx, svc.ID, protocol.StateFailed)
		return protocol.WrapError(protocol.CodeIO, "failed to spawn service process", err)
	}
	rp.setState(protocol.StateRunning)

	s.mu.Lock()
	s.processes[svc.ID] = rp
	s.mu.Unlock()

	s.markPersistedStatus(ctx, svc.ID, protocol.StateRunning)

	return nil
}

// reserveStartingSlot atomically checks for an existing live entry and,
// if none, inserts a placeholder in the Starting state. This closes
// the TOCTOU race between the map check and the spawn.
func (s *Supervisor) reserveStartingSlot(serviceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.processes[serviceID]; ok {
		switch existing.State() {
		case protocol.StateRunning, protocol.StateStarting:
			return protocol.NewError(protocol.CodePreconditionFailed, "already running")
		}
	}

	s.processes[serviceID] = &RunningProcess{ServiceID: serviceID, state: protocol.StateStarting, startedAt: time.Now()}
	return nil
}

func (s *Supervisor) removeEntry(serviceID int64) {
	s.mu.Lock()
	delete(s.processes, serviceID)
	s.mu.Unlock()
}

func (s *Supervisor) markPersistedStatus(ctx context.Context, serviceID int64, state protocol.ServiceState) {
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("service_id", serviceID).Msg("could not load service to persist status")
		return
	}
	svc.Status = state
	if err := s.services.Save(ctx, svc); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("service_id", serviceID).Msg("failed to persist service status")
	}
}

// Stop resolves ref, removes any live RunningProcess from the map, and
// runs the soft-then-hard kill escalation against its process group.
// If no entry was present this succeeds as a no-op.
func (s *Supervisor) Stop(ctx context.Context, ref protocol.ServiceRef) error {
	svc, err := s.services.GetByRef(ctx, ref)
	if err != nil {
		return err
	}

	s.mu.Lock()
	rp, ok := s.processes[svc.ID]
	if ok {
		delete(s.processes, svc.ID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	s.killAndAwait(ctx, rp)

	if err := s.pollPortFree(svc.Port); err != nil {
		s.markPersistedStatus(ctx, svc.ID, protocol.StateStopped)
		return err
	}

	s.markPersistedStatus(ctx, svc.ID, protocol.StateStopped)
	return nil
}

// killAndAwait runs the soft-then-hard kill escalation against rp's
// process group and waits for it to exit.
func (s *Supervisor) killAndAwait(ctx context.Context, rp *RunningProcess) {
	rp.setState(protocol.StateStopping)

	if err := signalGroupSoft(rp.pgid); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("service_id", rp.ServiceID).Msg("failed to send graceful stop signal")
	}

	select {
	case <-rp.waitDone:
		return
	case <-time.After(s.cfg.GracefulStopTimeout):
	}

	if err := signalGroupHard(rp.pgid); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("service_id", rp.ServiceID).Msg("failed to send hard kill signal")
	}

	select {
	case <-rp.waitDone:
	case <-time.After(s.cfg.HardKillTimeout):
		logging.Ctx(ctx).Warn().Int64("service_id", rp.ServiceID).Msg("process did not exit after hard kill deadline")
	}
}

func (s *Supervisor) pollPortFree(port int64) error {
	for i := 0; i < s.cfg.PortPollAttempts; i++ {
		if portFree(port) {
			return nil
		}
		time.Sleep(s.cfg.PortPollInterval)
	}
	if portFree(port) {
		return nil
	}
	return protocol.NewError(protocol.CodePreconditionFailed, "failed to free port")
}

// Restart stops then starts ref with env. It is not atomic: a failed
// stop aborts before start is attempted.
func (s *Supervisor) Restart(ctx context.Context, ref protocol.ServiceRef, env map[string]string) error {
	if err := s.Stop(ctx, ref); err != nil {
		return err
	}
	return s.Start(ctx, ref, env)
}

// Status returns the map entry's state for ref if present, else
// Stopped, reconciling against the OS process's actual exit status
// first.
func (s *Supervisor) Status(ctx context.Context, ref protocol.ServiceRef) (protocol.ServiceState, error) {
	svc, err := s.services.GetByRef(ctx, ref)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	rp, ok := s.processes[svc.ID]
	s.mu.RUnlock()

	if !ok {
		return protocol.StateStopped, nil
	}

	s.reconcile(ctx, rp)
	return rp.State(), nil
}

// reconcile checks whether an OS process the map still lists as
// Running (or Starting, past its deadline) has in fact exited, and
// updates its state and the persisted status accordingly.
func (s *Supervisor) reconcile(ctx context.Context, rp *RunningProcess) {
	select {
	case <-rp.waitDone:
		if rp.waitErr != nil {
			rp.setState(protocol.StateFailed)
		} else if rp.State() != protocol.StateStopping {
			rp.setState(protocol.StateStopped)
		}
		s.markPersistedStatus(ctx, rp.ServiceID, rp.State())
	default:
		if rp.State() == protocol.StateStarting && time.Since(rp.startedAt) > s.cfg.StartupDeadline {
			rp.setState(protocol.StateFailed)
			s.markPersistedStatus(ctx, rp.ServiceID, protocol.StateFailed)
		}
	}
}

// Stdout returns a snapshot of a running service's buffered output.
func (s *Supervisor) Stdout(serviceID int64, maxLines int) ([]protocol.LogEntry, bool) {
	s.mu.RLock()
	rp, ok := s.processes[serviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return rp.Stdout(maxLines), true
}

// Reap walks the map once, reconciling each entry and running the full
// cleanup protocol on any that have become Failed or exited while
// still marked Running.
func (s *Supervisor) Reap(ctx context.Context) {
	s.mu.RLock()
	entries := make([]*RunningProcess, 0, len(s.processes))
	for _, rp := range s.processes {
		entries = append(entries, rp)
	}
	s.mu.RUnlock()

	for _, rp := range entries {
		s.reconcile(ctx, rp)
		exited := false
		select {
		case <-rp.waitDone:
			exited = true
		default:
		}
		if exited || rp.State() == protocol.StateFailed {
			s.mu.Lock()
			if current, ok := s.processes[rp.ServiceID]; ok && current == rp {
				delete(s.processes, rp.ServiceID)
			}
			s.mu.Unlock()
			s.killAndAwait(ctx, rp)
		}
	}
}

// RunReaper runs Reap on cfg.ReaperInterval until ctx is canceled.
func (s *Supervisor) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reap(ctx)
		}
	}
}

// Shutdown runs the stop protocol against every entry still in the
// map. It returns once every process group has been reaped or
// forcibly killed.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	entries := make([]*RunningProcess, 0, len(s.processes))
	for id, rp := range s.processes {
		entries = append(entries, rp)
		delete(s.processes, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, rp := range entries {
		wg.Add(1)
		go func(rp *RunningProcess) {
			defer wg.Done()
			s.killAndAwait(ctx, rp)
		}(rp)
	}
	wg.Wait()
}
