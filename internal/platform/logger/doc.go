// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, and carries loggers through context values so
// request-scoped attributes survive across the cache and queue layers.
package logger
