package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "themis.assessment"

type event int

const (
	eventAnswer event = iota
	eventCompletion
	eventReset
	eventWriteConflict
	eventCount
)

var counterDefs = [eventCount]struct{ name, description string }{
	eventAnswer:        {"themis.assessment.answers", "Answers recorded"},
	eventCompletion:    {"themis.assessment.completions", "Assessments that reached a finding"},
	eventReset:         {"themis.assessment.resets", "Assessments reset to not started"},
	eventWriteConflict: {"themis.assessment.write_conflicts", "Optimistic write conflicts, including retried ones"},
}

// Metrics counts assessment activity. A nil or zero Metrics records nothing.
type Metrics struct {
	counters [eventCount]metric.Int64Counter
}

// NewMetrics registers the assessment counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.GetMeterProvider().Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	for e, d := range counterDefs {
		c, err := meter.Int64Counter(d.name, metric.WithDescription(d.description), metric.WithUnit("1"))
		if err != nil {
			return nil, err
		}
		m.counters[e] = c
	}
	return &m, nil
}

func (m *Metrics) record(ctx context.Context, e event, tenantID string) {
	if m == nil || m.counters[e] == nil {
		return
	}
	m.counters[e].Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}
