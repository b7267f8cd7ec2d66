// Package logging constructs the structured loggers used across Weft.
//
// All packages log through log/slog. This package turns the telemetry
// configuration into a configured *slog.Logger (level, format, source
// annotation) and provides component child loggers:
//
//	logger, err := logging.New(cfg.Telemetry.Logging, nil)
//	graphLog := logging.Component(logger, "graph")
package logging
