package sessionkit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one SessionStore counter or histogram.
type MetricID uint16

const (
	// MetricHydrateStarted counts hydrations started, whatever their trigger.
	MetricHydrateStarted MetricID = iota
	// MetricHydrateSuccess counts current hydrations that produced a user.
	MetricHydrateSuccess
	// MetricHydrateFailure counts current hydrations whose token was rejected.
	MetricHydrateFailure
	// MetricHydrateNoToken counts hydrations that found no stored token.
	MetricHydrateNoToken
	// MetricHydrateStale counts hydrations superseded before they resolved.
	MetricHydrateStale
	// MetricHydrateAbandoned counts hydrations whose caller context ended first.
	MetricHydrateAbandoned
	// MetricExpiredToken counts tokens rejected locally because their exp had passed.
	MetricExpiredToken
	MetricSignIn
	MetricSignOut
	// MetricStorageTrigger counts hydrations triggered by a storage change from another context.
	MetricStorageTrigger
	// MetricVisibilityTrigger counts hydrations triggered by the context becoming visible.
	MetricVisibilityTrigger
	// MetricHydrateLatency is the only histogram: time from start to resolution of a hydration.
	MetricHydrateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free SessionStore counters. A nil or disabled Metrics discards
// every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics. Histogram buckets are
// non-cumulative, ordered as in HistogramBounds. HistogramSums holds the total of the
// observed durations for each histogram.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram. Only MetricHydrateLatency accepts samples.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricHydrateLatency {
		return
	}

	if d < 0 {
		d = 0
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < MetricHydrateLatency; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricHydrateLatency].buckets[i])
		}
		s.Histograms[MetricHydrateLatency] = buckets
		s.HistogramSums[MetricHydrateLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricHydrateLatency].sumNanos))
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}
