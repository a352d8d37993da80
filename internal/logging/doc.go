// Package logging wires log/slog with the console and JSON handlers used
// across chevelle, standardized field keys, and run-log retention.
package logging
