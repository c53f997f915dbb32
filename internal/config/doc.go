// Package config loads and validates nexsockd's runtime configuration.
//
// Three layers are merged via koanf, lowest to highest priority:
// built-in defaults, an optional config file (the first of
// DefaultConfigPaths that exists, parsed as YAML whatever its
// extension, so a config.toml holding TOML fails to load), and
// NEXSOCKD_-prefixed environment variables (e.g. NEXSOCKD_IPC_SOCKET_PATH
// overrides ipc.socket_path). PLUGINS_DIR overrides plugins.dir without
// the NEXSOCKD_ prefix, matching spec §6.5.
package config
