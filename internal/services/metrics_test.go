package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestMetrics_RegistersEveryCounter(t *testing.T) {
	m, err := newMetrics(noop.NewMeterProvider().Meter(meterName))
	require.NoError(t, err)
	for e := event(0); e < eventCount; e++ {
		assert.NotNil(t, m.counters[e], counterDefs[e].name)
	}
	assert.NotPanics(t, func() { m.record(context.Background(), eventAnswer, "t-1") })
}

func TestMetrics_NilRecordsNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.record(context.Background(), eventWriteConflict, "t-1")
		(&Metrics{}).record(context.Background(), eventReset, "t-1")
	})
}
