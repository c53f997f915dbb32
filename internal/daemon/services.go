package daemon

import (
	"context"

	"github.com/nexsock/nexsockd/internal/config"
	"github.com/nexsock/nexsockd/internal/configmgr"
	"github.com/nexsock/nexsockd/internal/depmgr"
	"github.com/nexsock/nexsockd/internal/gitmgr"
	"github.com/nexsock/nexsockd/internal/hooks"
	"github.com/nexsock/nexsockd/internal/registry"
	"github.com/nexsock/nexsockd/internal/supervisor"
)

// BuildServices assembles every manager the daemon's handlers need
// from an open registry database and the daemon's configuration.
func BuildServices(db *registry.DB, cfg *config.Config) *Services {
	services := registry.NewServiceRepository(db)
	configs := registry.NewConfigRepository(db)
	deps := registry.NewDependencyRepository(db)

	sup := supervisor.New(services, cfg.Supervisor)
	cfgMgr := configmgr.New(services, configs)
	depMgr := depmgr.New(services, deps)
	git := gitmgr.New(cfg.Git.BinaryPath)
	bus := hooks.NewBus()

	svc := &Services{
		Services:     services,
		Configs:      configs,
		Dependencies: deps,
		Supervisor:   sup,
		ConfigMgr:    cfgMgr,
		DepMgr:       depMgr,
		GitMgr:       git,
		Hooks:        bus,
	}
	svc.Shutdown = func(ctx context.Context) { sup.Shutdown(ctx) }
	return svc
}
