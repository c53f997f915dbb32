package config

import (
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	IPC        IPCConfig        `koanf:"ipc"`
	Database   DatabaseConfig   `koanf:"database"`
	Plugins    PluginsConfig    `koanf:"plugins"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Git        GitConfig        `koanf:"git"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// IPCConfig configures the control-plane listener.
type IPCConfig struct {
	// SocketPath is the Unix domain socket path used on POSIX systems.
	SocketPath string `koanf:"socket_path"`
	// TCPAddr is the loopback listen address used when Unix sockets are
	// unavailable (non-POSIX targets), e.g. "127.0.0.1:50505".
	TCPAddr string `koanf:"tcp_addr"`
	// Network selects "unix" or "tcp" explicitly; empty means "unix" when
	// GOOS supports it and "tcp" otherwise.
	Network string `koanf:"network"`
}

// DatabaseConfig configures the embedded registry database.
type DatabaseConfig struct {
	// Path is the filesystem path of the SQLite database file.
	Path string `koanf:"path"`
}

// PluginsConfig configures hook-bus plugin discovery directories.
type PluginsConfig struct {
	Dir       string `koanf:"dir"`
	NativeDir string `koanf:"native_dir"`
	LuaDir    string `koanf:"lua_dir"`
}

// SupervisorConfig configures process-supervision timeouts and limits.
type SupervisorConfig struct {
	GracefulStopTimeout time.Duration `koanf:"graceful_stop_timeout"`
	HardKillTimeout     time.Duration `koanf:"hard_kill_timeout"`
	PortPollInterval    time.Duration `koanf:"port_poll_interval"`
	PortPollAttempts    int           `koanf:"port_poll_attempts"`
	StartupDeadline     time.Duration `koanf:"startup_deadline"`
	ReaperInterval      time.Duration `koanf:"reaper_interval"`
	StdoutRingCapacity  int           `koanf:"stdout_ring_capacity"`
}

// GitConfig configures default git behavior for the git manager.
type GitConfig struct {
	// BinaryPath is the path to the system git binary.
	BinaryPath string `koanf:"binary_path"`
}

// LoggingConfig configures the zerolog-based logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ConfigPathEnvVar overrides the default config file search when set.
const ConfigPathEnvVar = "NEXSOCKD_CONFIG"

// PluginsDirEnvVar overrides the plugin root directory per spec §6.5.
const PluginsDirEnvVar = "PLUGINS_DIR"

// DefaultConfigPaths lists config file search locations, highest priority first.
var DefaultConfigPaths = []string{
	"config.toml",
	"config.yaml",
	"/etc/nexsockd/config.yaml",
}

func defaultConfig() *Config {
	return &Config{
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
			TCPAddr:    "127.0.0.1:50505",
		},
		Database: DatabaseConfig{
			Path: defaultDatabasePath,
		},
		Plugins: PluginsConfig{
			Dir:       defaultPluginsDir,
			NativeDir: "native",
			LuaDir:    "lua",
		},
		Supervisor: SupervisorConfig{
			GracefulStopTimeout: 5 * time.Second,
			HardKillTimeout:     5 * time.Second,
			PortPollInterval:    500 * time.Millisecond,
			PortPollAttempts:    10,
			StartupDeadline:     10 * time.Second,
			ReaperInterval:      2 * time.Second,
			StdoutRingCapacity:  1000,
		},
		Git: GitConfig{
			BinaryPath: "git",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
