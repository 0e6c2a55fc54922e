package sessionauth

import "sync/atomic"

// MetricID identifies a single counter maintained by Metrics.
type MetricID int

const (
	// MetricLoginSuccess counts logins that issued a token pair.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected for any reason.
	MetricLoginFailure
	// MetricLoginUnknownPrincipal counts logins against identifiers
	// that resolve to no principal. Always incremented alongside
	// MetricLoginFailure.
	MetricLoginUnknownPrincipal
	// MetricRefreshSuccess counts refreshes that rotated the slot.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refreshes.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts refreshes presenting a token
	// that verified but did not match the stored slot.
	MetricRefreshReuseDetected
	// MetricLogout counts logout calls, including no-op logouts.
	MetricLogout
	// MetricRegisterSuccess counts created principals.
	MetricRegisterSuccess
	// MetricRegisterConflict counts registrations rejected because the
	// username or email was already taken.
	MetricRegisterConflict
	// MetricSecretChangeSuccess counts completed secret changes.
	MetricSecretChangeSuccess
	// MetricSecretChangeInvalidOld counts secret changes rejected
	// because the presented current secret did not verify.
	MetricSecretChangeInvalidOld
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the manager's counters. All methods are safe for
// concurrent use; a nil *Metrics is a valid no-op receiver.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics builds a Metrics from the given config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the counter for id. Out-of-range ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value returns the current value of a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id < 0 || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter into a fresh map. Counters continue to
// advance while the snapshot is taken; the result is not atomic across
// ids.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
