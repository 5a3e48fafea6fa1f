package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"choreshore-bridge/telemetry"
)

const (
	tracerName        = "choreshore-bridge/api"
	actionSpanName    = "choreshore.api.action"
	actionEventName   = "choreshore.action.request"
	actionEventDomain = "choreshore"
)

type actionRequestMetrics struct {
	logger      *log.Logger
	span        trace.Span
	start       time.Time
	route       string
	action      string
	taskID      string
	duplicate   bool
	keyProvided bool
	relay       time.Duration
	errorStage  string
}

func newActionRequestMetrics(ctx context.Context, logger *log.Logger, route, action, taskID string) (*actionRequestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, actionSpanName, trace.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("choreshore.action", action),
	))
	return &actionRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
		action: action,
		taskID: taskID,
	}, ctx
}

func (m *actionRequestMetrics) ObserveRelay(d time.Duration) {
	if d > 0 {
		m.relay = d
	}
}

func (m *actionRequestMetrics) SetKeyProvided(provided bool) {
	m.keyProvided = provided
}

func (m *actionRequestMetrics) SetDuplicate(duplicate bool) {
	m.duplicate = duplicate
}

func (m *actionRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log ends the request span and emits the observability event.
func (m *actionRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.String("choreshore.action", m.action),
		attribute.String("choreshore.task_id", m.taskID),
		attribute.Bool("choreshore.action.idempotency_key", m.keyProvided),
		attribute.Bool("choreshore.action.duplicate", m.duplicate),
		attribute.Float64("choreshore.action.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.relay > 0 {
		attrs = append(attrs, attribute.Float64("choreshore.action.relay_ms", durationToMillis(m.relay)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("choreshore.action.error_stage", m.errorStage))
	}
	m.span.SetAttributes(attrs...)

	severity := telemetry.SeverityForStatus(status, err)
	if severity == telemetry.SeverityError {
		desc := m.errorStage
		if err != nil {
			m.span.RecordError(err)
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}

	telemetry.Emit(m.logger, m.span, telemetry.Event{
		Name:       actionEventName,
		Domain:     actionEventDomain,
		Severity:   severity,
		Attributes: attrs,
		Err:        err,
	})
	m.span.End()
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
