// Package configmgr implements the configuration manager: thin
// operations over internal/registry's service and config repositories
// that resolve a service ref, then read or mutate its associated
// configuration row.
package configmgr

import (
	"context"

	"github.com/nexsock/nexsockd/internal/protocol"
	"github.com/nexsock/nexsockd/internal/registry"
)

// Manager implements update_config and get_config.
type Manager struct {
	services *registry.ServiceRepository
	configs  *registry.ConfigRepository
}

func New(services *registry.ServiceRepository, configs *registry.ConfigRepository) *Manager {
	return &Manager{services: services, configs: configs}
}

// Update resolves the owning service by ref and persists payload as
// its configuration. If the service already has a config_id the
// existing row is mutated in place; otherwise a new config row is
// created and its id is written back onto the service row.
func (m *Manager) Update(ctx context.Context, ref protocol.ServiceRef, payload protocol.ServiceConfigPayload) (*protocol.ServiceConfigPayload, error) {
	svc, err := m.services.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	cfg := &registry.Config{
		Filename:   payload.Filename,
		Format:     payload.Format,
		RunCommand: payload.RunCommand,
	}
	if svc.ConfigID != nil {
		cfg.ID = *svc.ConfigID
	}

	if err := m.configs.Save(ctx, cfg); err != nil {
		return nil, err
	}

	if svc.ConfigID == nil {
		svc.ConfigID = &cfg.ID
		if err := m.services.Save(ctx, svc); err != nil {
			return nil, err
		}
	}

	return &protocol.ServiceConfigPayload{
		ServiceRef: ref,
		Filename:   cfg.Filename,
		Format:     cfg.Format,
		RunCommand: cfg.RunCommand,
	}, nil
}

// Get resolves ref and projects its configuration onto the wire
// payload, failing with "no configuration" if none is set.
func (m *Manager) Get(ctx context.Context, ref protocol.ServiceRef) (*protocol.ServiceConfigPayload, error) {
	svc, err := m.services.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if svc.ConfigID == nil {
		return nil, protocol.NewError(protocol.CodePreconditionFailed, "no configuration")
	}

	cfg, err := m.configs.Get(ctx, *svc.ConfigID)
	if err != nil {
		return nil, err
	}

	return &protocol.ServiceConfigPayload{
		ServiceRef: ref,
		Filename:   cfg.Filename,
		Format:     cfg.Format,
		RunCommand: cfg.RunCommand,
	}, nil
}
