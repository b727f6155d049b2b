// Package logging wraps log/slog so every MachineID component logs
// through one handler with the same default fields.
//
// Records are JSON by default (machine-parsable for production) or
// text for local development, filtered at the configured level, and
// always stamped with the service name and version. Configured via
// config.yaml:
//
//	logging:
//	  level: "info"    # debug | info | warn | error
//	  format: "json"   # json | text
//	  output: "stdout" # stdout | stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("gate listening", "port", cfg.API.Port)
//	logger.Error("broker unreachable", "error", err)
//
// # Security
//
// Never log organisation keys, admin secrets or tokens. When a key
// must be referenced, log only its prefix:
//
//	logger.Info("org key rotated", "key_prefix", key[:8]+"...")
package logging
