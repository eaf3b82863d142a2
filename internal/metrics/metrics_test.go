package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.LineReceived()
	m.LineReceived()
	m.Decoded()
	m.Rejected("numeric")
	m.Rejected("numeric")
	m.Rejected("field_count")
	m.Alert("Price Spike")
	m.SetQueueDepth("decode", 7)
	m.SetTrackedMarkets(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDecoded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodeRejections.WithLabelValues("numeric")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeRejections.WithLabelValues("field_count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Alerts.WithLabelValues("Price Spike")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("decode")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TrackedMarkets))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LineReceived()
		m.LineDropped()
		m.Decoded()
		m.Rejected("numeric")
		m.Processed()
		m.Alert("Combined Alert")
		m.SetQueueDepth("analysis", 1)
		m.SetTrackedMarkets(1)
	})
}
