package core

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the structured logging surface used by the core. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewSlogLogger adapts a slog.Logger. A nil logger uses slog.Default.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return l
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus classifies an audited operation outcome.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation.
type AuditEntry struct {
	Operation string
	SessionID string
	Subject   string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for service operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Observability groups the collaborators shared by the service, the sessions
// and their sync engines.
type Observability struct {
	Clock   Clock
	Logger  Logger
	Audit   AuditRecorder
	Metrics MetricsRecorder
	Tracer  Tracer
}

func (o Observability) withDefaults() Observability {
	if o.Clock == nil {
		o.Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Audit == nil {
		o.Audit = noopAuditRecorder{}
	}
	if o.Metrics == nil {
		o.Metrics = noopMetricsRecorder{}
	}
	if o.Tracer == nil {
		o.Tracer = noopTracer{}
	}
	return o
}

// observe records metrics for an operation that started at start.
func (o Observability) observe(ctx context.Context, operation string, start time.Time, err error) {
	o.Metrics.Observe(ctx, operation, err == nil, o.Clock.Now().Sub(start))
}
