package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	cfg.IPC.Network = defaultNetwork
	require.NoError(t, cfg.Validate())
}

func TestValidateIPCRejectsUnknownNetwork(t *testing.T) {
	cfg := defaultConfig()
	cfg.IPC.Network = "carrier-pigeon"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ipc.network")
}

func TestValidateIPCRequiresTCPAddr(t *testing.T) {
	cfg := defaultConfig()
	cfg.IPC.Network = "tcp"
	cfg.IPC.TCPAddr = ""
	require.Error(t, cfg.Validate())
}

func TestValidateSupervisorRejectsNonPositiveTimeouts(t *testing.T) {
	cfg := defaultConfig()
	cfg.IPC.Network = defaultNetwork
	cfg.Supervisor.GracefulStopTimeout = 0
	require.Error(t, cfg.Validate())
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "ipc.socket_path", envTransform("NEXSOCKD_IPC_SOCKET_PATH"))
	assert.Equal(t, "database.path", envTransform("NEXSOCKD_DATABASE_PATH"))
}

func TestLoadAppliesDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/does/not/exist.yaml")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultNetwork, cfg.IPC.Network)
	assert.Equal(t, 5*time.Second, cfg.Supervisor.GracefulStopTimeout)
}

func TestLoadHonorsPluginsDirEnvVar(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/does/not/exist.yaml")
	t.Setenv(PluginsDirEnvVar, "/custom/plugins")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/custom/plugins", cfg.Plugins.Dir)
}
