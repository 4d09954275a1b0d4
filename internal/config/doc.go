// Package config loads, validates, and normalizes songforge's TOML
// configuration. Load merges an optional config file over repository
// defaults, expands ~ in path fields, and rejects invalid values before any
// other subsystem starts.
package config
