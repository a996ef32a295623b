// Package logging assembles the structured slog loggers used across easel.
//
// It owns the console and JSON handler plumbing, centralizes level parsing,
// and exposes component loggers so every subsystem tags its lines the same
// way. A no-op logger is provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the system.
package logging
