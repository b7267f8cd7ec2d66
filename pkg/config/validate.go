package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "sync.schedule").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateBackend("storage.graph", &cfg.Storage.Graph)...)
	errs = append(errs, validateBackend("storage.facts", &cfg.Storage.Facts)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateIdentity(cfg *IdentityConfig) []FieldError {
	var errs []FieldError

	if cfg.KeyPath == "" {
		errs = append(errs, FieldError{"identity.key_path", "must not be empty"})
	}
	if cfg.TrustedKeysDir == "" {
		errs = append(errs, FieldError{"identity.trusted_keys_dir", "must not be empty"})
	}
	if cfg.UnknownAuthorBuffer < 0 {
		errs = append(errs, FieldError{"identity.unknown_author_buffer", "must not be negative"})
	}

	return errs
}

func validateBackend(field string, cfg *BackendConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.Path == "" {
			errs = append(errs, FieldError{field + ".path", "required for the sqlite backend"})
		}
	default:
		errs = append(errs, FieldError{field + ".backend",
			fmt.Sprintf("unknown backend %q (must be \"memory\" or \"sqlite\")", cfg.Backend)})
	}

	return errs
}

func validateSync(cfg *SyncConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
			errs = append(errs, FieldError{"sync.listen_address",
				fmt.Sprintf("invalid address: %v", err)})
		}
	}
	for i, peer := range cfg.Peers {
		if _, _, err := net.SplitHostPort(peer); err != nil {
			errs = append(errs, FieldError{fmt.Sprintf("sync.peers[%d]", i),
				fmt.Sprintf("invalid address: %v", err)})
		}
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{"sync.schedule",
				fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err)})
		}
	}
	if cfg.SessionTimeout < 0 {
		errs = append(errs, FieldError{"sync.session_timeout", "must not be negative"})
	}
	if cfg.PendingTimeout < 0 {
		errs = append(errs, FieldError{"sync.pending_timeout", "must not be negative"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"telemetry.logging.level",
			fmt.Sprintf("unknown level %q", cfg.Logging.Level)})
	}
	switch cfg.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{"telemetry.logging.format",
			fmt.Sprintf("unknown format %q", cfg.Logging.Format)})
	}
	if cfg.Metrics.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{"telemetry.metrics.listen_address",
				fmt.Sprintf("invalid address: %v", err)})
		}
	}

	return errs
}
