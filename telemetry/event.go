// Package telemetry emits observability events as both span events and
// structured log entries.
package telemetry

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EventMessage is the log message and span event name of every event.
const EventMessage = "observability.event"

// Severity follows the OpenTelemetry log severity numbers.
type Severity struct {
	Text   string
	Number int
}

var (
	SeverityInfo  = Severity{Text: "INFO", Number: 9}
	SeverityWarn  = Severity{Text: "WARN", Number: 13}
	SeverityError = Severity{Text: "ERROR", Number: 17}
)

// SeverityForStatus maps an HTTP status and error to a severity. Any error
// is reported as ERROR.
func SeverityForStatus(status int, err error) Severity {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return SeverityError
	case status >= http.StatusBadRequest:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// Event is a single observability record.
type Event struct {
	Name       string
	Domain     string
	Severity   Severity
	Attributes []attribute.KeyValue
	Err        error
}

// Emit adds ev to span and logs it at the matching level. A nil logger only
// records the span event.
func Emit(logger *log.Logger, span trace.Span, ev Event) {
	if ev.Severity.Text == "" {
		ev.Severity = SeverityInfo
	}
	attrs := make([]attribute.KeyValue, 0, len(ev.Attributes)+1)
	attrs = append(attrs, ev.Attributes...)
	if ev.Err != nil {
		attrs = append(attrs, attribute.String("error.message", ev.Err.Error()))
	}

	if span != nil {
		spanAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", ev.Name),
			attribute.String("event.domain", ev.Domain),
			attribute.String("severity_text", ev.Severity.Text),
			attribute.Int("severity_number", ev.Severity.Number),
		}, attrs...)
		span.AddEvent(EventMessage, trace.WithAttributes(spanAttrs...))
	}

	if logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      ev.Name,
		"event.domain":    ev.Domain,
		"severity_text":   ev.Severity.Text,
		"severity_number": ev.Severity.Number,
		"attributes":      attributeMap(attrs),
	}
	if span != nil {
		if sc := span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}

	entry := logger.WithFields(fields)
	switch ev.Severity {
	case SeverityError:
		entry.Error(EventMessage)
	case SeverityWarn:
		entry.Warn(EventMessage)
	default:
		entry.Info(EventMessage)
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
