package config

import "time"

// Config is the root configuration structure for a Weft node.
// It contains all configuration sections for device identity, storage
// backends, graph synchronization, and telemetry.
type Config struct {
	// Device contains configuration identifying this device in the mesh.
	Device DeviceConfig `yaml:"device"`

	// Identity contains configuration for the signing key store and the
	// trusted author key directory.
	Identity IdentityConfig `yaml:"identity"`

	// Storage contains configuration for the command graph store and the
	// fact store backends.
	Storage StorageConfig `yaml:"storage"`

	// Sync contains configuration for the merge/reconciliation protocol
	// including the sync schedule, peer list, and pending-command limits.
	Sync SyncConfig `yaml:"sync"`

	// Telemetry contains configuration for observability including logging
	// and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DeviceConfig identifies this device.
type DeviceConfig struct {
	// Name is a human-readable device name used in logs and effect
	// attribution. It has no protocol meaning; identity on the wire is
	// always the author's key identifier.
	// Default: hostname
	Name string `yaml:"name"`
}

// IdentityConfig contains configuration for key material.
type IdentityConfig struct {
	// KeyPath is the path to this device's signing key file. The file is
	// created by "weft keys generate".
	// Default: "data/device.key"
	KeyPath string `yaml:"key_path"`

	// TrustedKeysDir is the directory holding one public key file per
	// trusted author, named by author identifier.
	// Default: "data/trusted"
	TrustedKeysDir string `yaml:"trusted_keys_dir"`

	// WatchTrustedKeys enables watching TrustedKeysDir for new keys so
	// envelopes buffered on an unknown author are released as soon as the
	// author's key propagates.
	// Default: true
	WatchTrustedKeys bool `yaml:"watch_trusted_keys"`

	// UnknownAuthorBuffer is the maximum number of envelopes buffered while
	// waiting for an unknown author's key. The oldest envelope is dropped
	// when the buffer is full.
	// Default: 256
	UnknownAuthorBuffer int `yaml:"unknown_author_buffer"`
}

// StorageConfig contains configuration for the persistent stores.
type StorageConfig struct {
	// Graph configures the command graph store.
	Graph BackendConfig `yaml:"graph"`

	// Facts configures the fact store.
	Facts BackendConfig `yaml:"facts"`
}

// BackendConfig selects and configures a storage backend.
type BackendConfig struct {
	// Backend is the storage backend type: "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the database file path for the sqlite backend.
	Path string `yaml:"path"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// SyncConfig contains configuration for graph reconciliation.
type SyncConfig struct {
	// ListenAddress is the UDP address for receiving envelopes and sync
	// messages. Format: "host:port".
	// Default: "0.0.0.0:7420"
	ListenAddress string `yaml:"listen_address"`

	// Peers lists peer addresses to advertise heads to. The protocol also
	// answers any peer that contacts us first.
	Peers []string `yaml:"peers"`

	// Schedule is a cron expression controlling periodic sync rounds.
	// Default: "@every 30s"
	Schedule string `yaml:"schedule"`

	// SessionTimeout is the stall timeout for an in-flight sync session.
	// A session that makes no progress within this window is abandoned;
	// pending commands stay pending and a later round retries.
	// Default: 5s
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// PendingTimeout bounds how long a command may remain pending on a
	// missing ancestor before it is reported as dangling.
	// Default: 5m
	PendingTimeout time.Duration `yaml:"pending_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json", "text", or "console".
	// Default: "text"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics exposure.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address serving the /metrics endpoint.
	// Empty disables the HTTP listener (metrics are still collected).
	ListenAddress string `yaml:"listen_address"`

	// Namespace is the Prometheus metric namespace.
	// Default: "weft"
	Namespace string `yaml:"namespace"`
}
