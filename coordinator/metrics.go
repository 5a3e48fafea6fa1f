package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"choreshore-bridge/domain"
	"choreshore-bridge/telemetry"
)

const (
	tracerName     = "choreshore-bridge/coordinator"
	pollSpanName   = "choreshore.poll"
	pollEventName  = "choreshore.poll.completed"
	actionSpanName = "choreshore.action"
	eventDomain    = "choreshore"
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "choreshore",
		Name:      "polls_total",
		Help:      "Poll cycles by fetch mode and result.",
	}, []string{"mode", "result"})
	pollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "choreshore",
		Name:      "poll_duration_seconds",
		Help:      "Duration of poll cycles.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})
	degradedResources = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "choreshore",
		Name:      "degraded_resources_total",
		Help:      "Resources empty-filled after a failed fetch.",
	}, []string{"resource"})
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "choreshore",
		Name:      "actions_total",
		Help:      "Task actions relayed to the backend by result.",
	}, []string{"action", "result"})
)

type pollMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time
	pollID string
	mode   domain.Source
}

func startPollMetrics(ctx context.Context, logger *log.Logger, scope domain.Scope, mode domain.Source) (*pollMetrics, context.Context) {
	pollID := uuid.NewString()
	ctx, span := otel.Tracer(tracerName).Start(ctx, pollSpanName, trace.WithAttributes(
		attribute.String("choreshore.poll.id", pollID),
		attribute.String("choreshore.scope", scope.Key()),
		attribute.String("choreshore.mode", string(mode)),
	))
	return &pollMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		pollID: pollID,
		mode:   mode,
	}, ctx
}

func (m *pollMetrics) Finish(snap *domain.Snapshot, err error) {
	elapsed := time.Since(m.start)
	pollDuration.WithLabelValues(string(m.mode)).Observe(elapsed.Seconds())

	attrs := []attribute.KeyValue{
		attribute.String("choreshore.poll.id", m.pollID),
		attribute.String("choreshore.mode", string(m.mode)),
		attribute.Float64("choreshore.poll.total_ms", durationToMillis(elapsed)),
	}
	severity := telemetry.SeverityInfo
	result := "success"
	switch {
	case err != nil:
		result = "failure"
		severity = telemetry.SeverityError
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	default:
		attrs = append(attrs,
			attribute.Int("choreshore.poll.instances", len(snap.Instances)),
			attribute.Int("choreshore.poll.members", len(snap.Members)),
			attribute.Int("choreshore.analytics.overdue", snap.Analytics.OverdueTasks),
			attribute.Int("choreshore.analytics.pending", snap.Analytics.PendingTasks),
		)
		if len(snap.Degraded) > 0 {
			result = "degraded"
			severity = telemetry.SeverityWarn
			attrs = append(attrs, attribute.StringSlice("choreshore.poll.degraded", snap.Degraded))
			for _, resource := range snap.Degraded {
				degradedResources.WithLabelValues(resource).Inc()
			}
		}
		m.span.SetStatus(codes.Ok, "")
	}
	pollsTotal.WithLabelValues(string(m.mode), result).Inc()
	m.span.SetAttributes(attrs...)

	telemetry.Emit(m.logger, m.span, telemetry.Event{
		Name:       pollEventName,
		Domain:     eventDomain,
		Severity:   severity,
		Attributes: attrs,
		Err:        err,
	})
	m.span.End()
}

func startActionSpan(ctx context.Context, action, instanceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, actionSpanName, trace.WithAttributes(
		attribute.String("choreshore.action", action),
		attribute.String("choreshore.instance_id", instanceID),
	))
}

func finishAction(span trace.Span, action string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	actionsTotal.WithLabelValues(action, result).Inc()
	span.End()
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
