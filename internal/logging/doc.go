// Package logging assembles the structured slog loggers used across Capstan.
//
// It owns the console and JSON handlers and centralizes level plumbing so the
// CLI and the client libraries emit data with the same shape. The console
// handler targets humans at a terminal; JSON output is for machine consumers.
//
// Prefer these constructors over hand-rolled slog setup, and NewNop for tests
// and wiring code that cannot fail.
package logging
