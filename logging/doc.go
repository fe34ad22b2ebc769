// Package logging provides a minimal logging interface and adapters for RAAF.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, tools and stores use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - StructuredLogger built on log/slog with json, text and console (tint) output
//   - ZerologAdapter for applications standardized on zerolog
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "console", false)
//	r := runner.New(provider, func(o *runner.Options) { o.Logger = logger })
package logging
