package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "dashboard/api"
	requestSpanName    = "dashboard.request"
	requestEventName   = "dashboard.request"
	requestEventDomain = "dashboard"
	attrPrefix         = "dashboard.request."
	metricsContextKey  = "request.metrics"
)

var (
	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_todoist_webhook_deliveries_total",
		Help: "Todoist webhook deliveries by outcome",
	}, []string{"result"})

	analyzerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_analyzer_requests_total",
		Help: "Action item extraction requests by outcome",
	}, []string{"outcome"})

	dashboardWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_writes_total",
		Help: "Saved dashboard documents by source",
	}, []string{"source"})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_stream_clients",
		Help: "Connected SSE clients",
	})
)

// requestMetrics collects stage timings for one request and emits them as an
// observability event on the logger and on the request span.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	start      time.Time
	method     string
	route      string
	user       string
	stages     map[string]time.Duration
	counts     map[string]int
	errorStage string
	rejection  string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", method),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		method: method,
		route:  route,
		stages: make(map[string]time.Duration, 4),
		counts: make(map[string]int, 2),
	}, spanCtx
}

// metricsFrom returns the request's metrics, or nil outside RequestMetrics.
// Every method is safe on a nil receiver.
func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func (m *requestMetrics) now() time.Time { return time.Now() }

// ObserveStage records how long a named stage (auth, load, save, upstream) took.
func (m *requestMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.stages[stage] += d
}

// Time runs fn as the named stage.
func (m *requestMetrics) Time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.ObserveStage(stage, time.Since(start))
	if err != nil {
		m.SetErrorStage(stage)
	}
	return err
}

func (m *requestMetrics) SetCount(name string, n int) {
	if m == nil {
		return
	}
	m.counts[name] = max(0, n)
}

func (m *requestMetrics) SetUser(user string) {
	if m == nil {
		return
	}
	m.user = user
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" || m.errorStage != "" {
		return
	}
	m.errorStage = stage
}

// SetRejection records a client error that is not logged as a failure.
func (m *requestMetrics) SetRejection(err error) {
	if m == nil || err == nil {
		return
	}
	m.rejection = err.Error()
}

// Log emits the observability event and ends the span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":       m.route,
		"http.method":      m.method,
		"http.status_code": status,
		"severity_text":    severityText,
		"severity_number":  severityNumber,
		"event.name":       requestEventName,
		"event.domain":     requestEventDomain,
	}
	attrs[attrPrefix+"total_ms"] = durationToMillis(time.Since(m.start))
	for stage, d := range m.stages {
		attrs[attrPrefix+stage+"_ms"] = durationToMillis(d)
	}
	for name, n := range m.counts {
		attrs[attrPrefix+name] = n
	}
	if m.user != "" {
		attrs["enduser.id"] = m.user
	}
	if m.errorStage != "" {
		attrs[attrPrefix+"error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	} else if m.rejection != "" {
		attrs["error.message"] = m.rejection
	}

	kvs := toAttributes(attrs)
	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("http.status_code", status),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String(attrPrefix+"error_stage", m.errorStage))
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(kvs...))
		if severityNumber >= severityError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

const (
	severityInfo  = 9
	severityWarn  = 13
	severityError = 17
)

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", severityError
	case status >= http.StatusBadRequest:
		return "WARN", severityWarn
	default:
		return "INFO", severityInfo
	}
}

func toAttributes(attrs map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case float64:
			out = append(out, attribute.Float64(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		}
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
