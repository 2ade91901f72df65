package audit

import (
	"context"
	"log/slog"
	"time"
)

type requestIDKey struct{}

// WithRequestID attaches a request id that audit records will carry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, now: time.Now}
}

// Entry is one audit record.
type Entry struct {
	TenantID   string
	Actor      string
	Action     string
	Resource   string
	ResourceID string
	Status     string
	Details    string
}

func (al *Logger) Log(ctx context.Context, e Entry) {
	al.logger.Info("audit",
		slog.String("action", e.Action),
		slog.String("resource", e.Resource),
		slog.String("resource_id", e.ResourceID),
		slog.String("tenant_id", e.TenantID),
		slog.String("actor", e.Actor),
		slog.String("status", e.Status),
		slog.String("details", e.Details),
		slog.String("request_id", RequestIDFromContext(ctx)),
		slog.Time("timestamp", al.now()),
	)
}

func (al *Logger) LogCandidate(ctx context.Context, tenantID, actor, action, candidateID, details string) {
	al.Log(ctx, Entry{
		TenantID:   tenantID,
		Actor:      actor,
		Action:     action,
		Resource:   "candidate",
		ResourceID: candidateID,
		Status:     "success",
		Details:    details,
	})
}

func (al *Logger) LogPrincipal(ctx context.Context, actor, action, principalID, details string) {
	al.Log(ctx, Entry{
		Actor:      actor,
		Action:     action,
		Resource:   "principal",
		ResourceID: principalID,
		Status:     "success",
		Details:    details,
	})
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, actor, reason string) {
	al.Log(ctx, Entry{
		TenantID: tenantID,
		Actor:    actor,
		Action:   "access_denied",
		Resource: "api",
		Status:   "denied",
		Details:  reason,
	})
}
