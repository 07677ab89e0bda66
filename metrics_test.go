package sessionkit

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricHydrateSuccess)

	if got := m.Value(MetricHydrateSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricHydrateSuccess)
	m.Inc(MetricHydrateSuccess)
	m.Inc(MetricHydrateSuccess)

	if got := m.Value(MetricHydrateSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricSignIn)
	m.Observe(MetricHydrateLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
	if got := m.Value(MetricSignIn); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("expected empty snapshot")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricHydrateStarted)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricHydrateStarted); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		3 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricHydrateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricHydrateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, got := range buckets {
		if got != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, got)
		}
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricSignOut, time.Millisecond)

	snap := m.Snapshot()
	for _, n := range snap.Histograms[MetricHydrateLatency] {
		if n != 0 {
			t.Fatal("observation on a counter id must be dropped")
		}
	}
	if _, ok := snap.Counters[MetricHydrateLatency]; ok {
		t.Fatal("histogram id must not appear among counters")
	}
}

func TestMetricsLatencyRequiresEnabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	if m.LatencyEnabled() {
		t.Fatal("latency must stay off while metrics are disabled")
	}
}

func TestMetricsHistogramTracksSum(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricHydrateLatency, 40*time.Millisecond)
	m.Observe(MetricHydrateLatency, 2*time.Second)
	m.Observe(MetricHydrateLatency, -time.Millisecond)

	snap := m.Snapshot()
	if got := snap.HistogramSums[MetricHydrateLatency]; got != 2040*time.Millisecond {
		t.Fatalf("expected sum 2.04s, got %s", got)
	}
}
