// Package logger builds the structured slog loggers used across the monitor.
// Production environments log JSON, everything else logs text, and every
// record carries the environment it was emitted from.
package logger
