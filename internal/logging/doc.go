// Package logging assembles structured slog loggers and formatting helpers
// used across spoilshield components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes attr helpers so pipeline code tags log lines with the
// same field shapes everywhere. The package also provides a no-op logger for
// tests and wiring code that cannot fail.
package logging
