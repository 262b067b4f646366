// Package errutil funnels non-fatal errors into structured logging so
// call sites stay terse.
package errutil

import "log/slog"

// LogMsg logs err at warn level with msg if err is not nil. Used for
// cleanup failures that should not interrupt the session.
func LogMsg(err error, msg string, args ...any) {
	if err == nil {
		return
	}
	slog.Warn(msg, append([]any{"error", err}, args...)...)
}

// ReportError logs an unexpected error at error level. Centralized so a
// crash reporter can be attached later in one place.
func ReportError(err error, msg string, args ...any) {
	if err == nil {
		return
	}
	slog.Error(msg, append([]any{"error", err}, args...)...)
}
