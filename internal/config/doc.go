// Package config loads, normalizes, and validates the TOML configuration
// shared by the spoilshield daemon and CLI.
package config
