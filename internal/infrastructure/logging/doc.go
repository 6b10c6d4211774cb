// Package logging provides structured logging for the Klafs vDC bridge.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and format.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("sync").Info("poll finished", "outcome", "changed")
//
// Attributes named password, pin, cookie, token, secret or authorization
// are masked before they reach the output.
package logging
