// Package logger configures structured logging on log/slog: a JSON handler at
// the configured level, optional file rotation, helpers for carrying a
// request-scoped logger in a context, and buffers for asserting on log output
// in tests.
package logger
