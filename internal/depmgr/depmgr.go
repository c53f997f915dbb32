// Package depmgr implements the dependency manager: resolving both
// endpoints of a dependency edge to ids before delegating to
// internal/registry's dependency repository.
package depmgr

import (
	"context"

	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/nexsock/nexsockd/internal/registry"
)

// Manager implements add_dependency, remove_dependency and
// list_dependencies.
type Manager struct {
	services *registry.ServiceRepository
	deps     *registry.DependencyRepository
}

func New(services *registry.ServiceRepository, deps *registry.DependencyRepository) *Manager {
	return &Manager{services: services, deps: deps}
}

// Add resolves owner and target to ids and inserts a new edge.
// Uniqueness and irreflexivity are enforced by the store; a violation
// surfaces as the store's classified error.
func (m *Manager) Add(ctx context.Context, owner, target protocol.ServiceRef, tunnel bool) error {
	ownerSvc, err := m.services.GetByRef(ctx, owner)
	if err != nil {
		return err
	}
	targetSvc, err := m.services.GetByRef(ctx, target)
	if err != nil {
		return err
	}
	return m.deps.Add(ctx, ownerSvc.ID, targetSvc.ID, tunnel)
}

// Remove resolves owner and target to ids and deletes the matching
// outgoing edge, failing with NotFound if none exists.
func (m *Manager) Remove(ctx context.Context, owner, target protocol.ServiceRef) error {
	ownerSvc, err := m.services.GetByRef(ctx, owner)
	if err != nil {
		return err
	}
	targetSvc, err := m.services.GetByRef(ctx, target)
	if err != nil {
		return err
	}
	return m.deps.Remove(ctx, ownerSvc.ID, targetSvc.ID)
}

// List resolves owner and returns its outgoing edges joined with each
// target's identity and persisted (advisory) status; the supervisor's
// live state is not consulted.
func (m *Manager) List(ctx context.Context, owner protocol.ServiceRef) (*protocol.ListDependenciesResponse, error) {
	ownerSvc, err := m.services.GetByRef(ctx, owner)
	if err != nil {
		return nil, err
	}

	joined, err := m.deps.ListDependencies(ctx, ownerSvc.ID)
	if err != nil {
		return nil, err
	}

	out := make([]protocol.DependencyInfo, 0, len(joined))
	for _, j := range joined {
		out = append(out, protocol.DependencyInfo{
			DependentServiceID: j.DependentServiceID,
			DependentName:      j.DependentName,
			TunnelEnabled:      j.TunnelEnabled,
			State:              j.State,
		})
	}

	return &protocol.ListDependenciesResponse{Dependencies: out}, nil
}
