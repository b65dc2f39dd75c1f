// Package config loads, normalizes, and validates the TOML configuration
// consumed by the sync engine and CLI.
package config
