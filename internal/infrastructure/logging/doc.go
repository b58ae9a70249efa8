// Package logging provides structured logging for the Gree bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridge.
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
// The --debug flag forces the level to debug.
//
// # Security
//
// Never log device keys or broker credentials. Log the redacted config
// (config.Config.String) instead of the struct itself.
package logging
