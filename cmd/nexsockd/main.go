// Command nexsockd is nexsockd's daemon entrypoint: it loads
// configuration, opens the registry database, wires every manager
// into the IPC handler registry, and serves the control plane until
// SIGINT or SIGTERM triggers a graceful shutdown.
package main

import (
	"context"

	"github.com/nexsock/nexsockd/internal/config"
	"github.com/nexsock/nexsockd/internal/daemon"
	"github.com/nexsock/nexsockd/internal/logging"
	"github.com/nexsock/nexsockd/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("socket_path", cfg.IPC.SocketPath).Str("network", cfg.IPC.Network).
		Msg("starting nexsockd")

	db, err := registry.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open registry database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing registry database")
		}
	}()

	services := daemon.BuildServices(db, cfg)
	server := daemon.NewServer(cfg.IPC, services)

	if err := server.Run(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("daemon server exited with error")
	}

	logging.Info().Msg("nexsockd stopped")
}
