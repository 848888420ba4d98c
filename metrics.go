package keygate

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint8

const (
	// MetricLoginSuccess counts completed logins (full token issued).
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins of any cause.
	MetricLoginFailure
	// MetricSecondFactorRequired counts logins answered with a pending
	// assertion.
	MetricSecondFactorRequired
	// MetricSecondFactorSuccess counts completed second-factor
	// verifications.
	MetricSecondFactorSuccess
	// MetricSecondFactorFailure counts rejected second-factor
	// verifications.
	MetricSecondFactorFailure
	// MetricSendSuccess counts sends that reached the dispatcher.
	MetricSendSuccess
	// MetricQuotaRejected counts sends blocked by the daily quota.
	MetricQuotaRejected
	// MetricDispatchDegraded counts collaborator failures converted to
	// all-failed results.
	MetricDispatchDegraded
	// MetricTokenRejected counts assertions that failed validation.
	MetricTokenRejected

	metricIDCount
)

// Metrics holds in-process atomic counters. All operations are no-ops when
// metrics are disabled at build time.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates a Metrics instance.
func NewMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricIDCount)
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}
