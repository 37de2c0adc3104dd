// Package logging builds the structured slog loggers used by the embedder
// worker and CLI.
//
// It owns the console and JSON handlers, level parsing, and output routing
// (stdout/stderr plus optional log files). Context helpers stamp job IDs,
// pipeline stages, and correlation IDs onto log lines so a single job can be
// followed from lease to report. NewNop returns a discarding logger for tests
// and for wiring code that must not fail.
//
// Use the typed attribute helpers (String, Int64, Error, ...) and the Field*
// keys instead of ad-hoc slog calls so every component emits the same shape.
package logging
