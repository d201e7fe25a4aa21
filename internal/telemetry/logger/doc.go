// Package logger provides structured logging for the snapshot agent.
//
// Files:
//
//   - logger.go: log/slog-backed Logger and level configuration
//   - context.go: context-aware logging with request/trace IDs
//   - redact.go: sensitive data redaction
package logger
