// Package config provides configuration management for Weft.
//
// This package handles loading and validating configuration from YAML files.
// It provides a type-safe configuration tree with comprehensive validation
// and sensible defaults.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Loading applies defaults for any unset field and validates the result;
// a ValidationError lists every offending field at once rather than failing
// on the first.
//
// # Sections
//
//   - device: device name used in logs and effect attribution
//   - identity: signing key path and trusted author key directory
//   - storage: graph and fact store backends (memory or sqlite)
//   - sync: reconciliation schedule, peers, and pending-command limits
//   - telemetry: logging and Prometheus metrics
package config
