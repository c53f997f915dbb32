package config

import (
	"fmt"
	"runtime"
)

// Validate checks that configuration values are internally consistent.
func (c *Config) Validate() error {
	if err := c.validateIPC(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateIPC() error {
	switch c.IPC.Network {
	case "unix":
		if runtime.GOOS == "windows" {
			return fmt.Errorf("ipc.network=unix is not supported on windows")
		}
		if c.IPC.SocketPath == "" {
			return fmt.Errorf("ipc.socket_path is required when ipc.network=unix")
		}
	case "tcp":
		if c.IPC.TCPAddr == "" {
			return fmt.Errorf("ipc.tcp_addr is required when ipc.network=tcp")
		}
	case "":
		return fmt.Errorf("ipc.network must be set")
	default:
		return fmt.Errorf("ipc.network must be \"unix\" or \"tcp\", got %q", c.IPC.Network)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	s := c.Supervisor
	if s.GracefulStopTimeout <= 0 {
		return fmt.Errorf("supervisor.graceful_stop_timeout must be positive")
	}
	if s.HardKillTimeout <= 0 {
		return fmt.Errorf("supervisor.hard_kill_timeout must be positive")
	}
	if s.PortPollAttempts <= 0 {
		return fmt.Errorf("supervisor.port_poll_attempts must be positive")
	}
	if s.StdoutRingCapacity <= 0 {
		return fmt.Errorf("supervisor.stdout_ring_capacity must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled", "":
	default:
		return fmt.Errorf("logging.level %q is not a recognized level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	return nil
}
