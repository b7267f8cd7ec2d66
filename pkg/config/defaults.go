package config

import (
	"os"
	"time"
)

// Default values for configuration fields.
const (
	DefaultKeyPath             = "data/device.key"
	DefaultTrustedKeysDir      = "data/trusted"
	DefaultUnknownAuthorBuffer = 256

	DefaultGraphBackend = "sqlite"
	DefaultGraphPath    = "data/graph.db"
	DefaultFactsBackend = "sqlite"
	DefaultFactsPath    = "data/facts.db"
	DefaultBusyTimeout  = 5 * time.Second

	DefaultSyncListenAddress = "0.0.0.0:7420"
	DefaultSyncSchedule      = "@every 30s"
	DefaultSessionTimeout    = 5 * time.Second
	DefaultPendingTimeout    = 5 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultMetricsNamespace = "weft"
)

// DefaultConfig returns a configuration populated with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any unset configuration fields.
// It modifies the configuration in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Device.Name == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Device.Name = host
		} else {
			cfg.Device.Name = "weft"
		}
	}

	if cfg.Identity.KeyPath == "" {
		cfg.Identity.KeyPath = DefaultKeyPath
	}
	if cfg.Identity.TrustedKeysDir == "" {
		cfg.Identity.TrustedKeysDir = DefaultTrustedKeysDir
	}
	if cfg.Identity.UnknownAuthorBuffer == 0 {
		cfg.Identity.UnknownAuthorBuffer = DefaultUnknownAuthorBuffer
		cfg.Identity.WatchTrustedKeys = true
	}

	if cfg.Storage.Graph.Backend == "" {
		cfg.Storage.Graph.Backend = DefaultGraphBackend
	}
	if cfg.Storage.Graph.Path == "" {
		cfg.Storage.Graph.Path = DefaultGraphPath
	}
	if cfg.Storage.Graph.BusyTimeout == 0 {
		cfg.Storage.Graph.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.Storage.Facts.Backend == "" {
		cfg.Storage.Facts.Backend = DefaultFactsBackend
	}
	if cfg.Storage.Facts.Path == "" {
		cfg.Storage.Facts.Path = DefaultFactsPath
	}
	if cfg.Storage.Facts.BusyTimeout == 0 {
		cfg.Storage.Facts.BusyTimeout = DefaultBusyTimeout
	}

	if cfg.Sync.ListenAddress == "" {
		cfg.Sync.ListenAddress = DefaultSyncListenAddress
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = DefaultSyncSchedule
	}
	if cfg.Sync.SessionTimeout == 0 {
		cfg.Sync.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.Sync.PendingTimeout == 0 {
		cfg.Sync.PendingTimeout = DefaultPendingTimeout
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
		cfg.Telemetry.Metrics.Enabled = true
	}
}
