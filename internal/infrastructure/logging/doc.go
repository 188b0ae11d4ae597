// Package logging provides structured logging for the Starlink bridge.
//
// This package wraps Go's standard log/slog package so every component
// logs the same way.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("position updated", "lat", 47.6, "lon", -122.3)
//	logger.Error("dish unreachable", "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
