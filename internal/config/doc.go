// Package config loads, normalizes, and validates chevelle configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and rejects capacity/mode combinations that
// cannot hold a session. Always obtain settings through this package so
// downstream code receives sanitized paths and validated disc geometry.
package config
