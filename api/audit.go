package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditRegister          AuditEvent = "register"
	AuditLoginStarted      AuditEvent = "login_started"
	AuditLoginSuccess      AuditEvent = "login_success"
	AuditLoginFailure      AuditEvent = "login_failure"
	AuditLoginRateLimited  AuditEvent = "login_rate_limited"
	AuditTwoFactorEnabled  AuditEvent = "2fa_enabled"
	AuditTwoFactorRequired AuditEvent = "2fa_required"
	AuditTwoFactorSuccess  AuditEvent = "2fa_success"
	AuditTwoFactorFailure  AuditEvent = "2fa_failure"
	AuditRecordsExported   AuditEvent = "records_exported"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger  *slog.Logger
	monitor *threatMonitor
}

func newAuditLogger(logger *slog.Logger, monitor *threatMonitor) *auditLogger {
	return &auditLogger{
		logger:  logger.With("component", "audit"),
		monitor: monitor,
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.monitor != nil {
		al.monitor.recordEvent(event)
	}
}

// logEvent is a convenience for events tied to a user ID.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed authentication attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
