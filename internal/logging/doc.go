// Package logging builds the slog loggers used across the engine: a pretty
// console handler for interactive use, a JSON handler for machine capture,
// standardized attribute keys, and helpers for component-scoped loggers.
package logging
