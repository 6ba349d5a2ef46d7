// Package logging provides structured logging for the inventory server.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
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
//	logger.Info("check-in accepted", "laptop_serial", serial)
//	logger.Error("persist failed", "error", err)
//
// # Security
//
// Check-in payloads carry user names. They are only logged in full when the
// debug flag is set. Never log MQTT passwords or InfluxDB tokens.
package logging
