package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aification/sessionkit"
	"github.com/aification/sessionkit/metrics/export/internaldefs"
)

// MetricsSource is satisfied by *sessionkit.SessionStore.
type MetricsSource interface {
	MetricsSnapshot() sessionkit.MetricsSnapshot
}

type counterDesc struct {
	id   sessionkit.MetricID
	desc *prom.Desc
}

// PrometheusExporter is a prom.Collector over a MetricsSource.
type PrometheusExporter struct {
	source     MetricsSource
	counters   []counterDesc
	histograms []counterDesc
}

var _ prom.Collector = (*PrometheusExporter)(nil)

// NewPrometheusExporter returns a collector reading from source.
func NewPrometheusExporter(source MetricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]counterDesc, 0, len(internaldefs.HistogramDefs)),
	}
	for _, def := range internaldefs.CounterDefs {
		p.counters = append(p.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		p.histograms = append(p.histograms, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return p
}

func (p *PrometheusExporter) Describe(ch chan<- *prom.Desc) {
	for _, c := range p.counters {
		ch <- c.desc
	}
	for _, h := range p.histograms {
		ch <- h.desc
	}
}

// Collect emits nothing while the source has metrics disabled.
func (p *PrometheusExporter) Collect(ch chan<- prom.Metric) {
	if p == nil || p.source == nil {
		return
	}
	snapshot := p.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return
	}

	for _, c := range p.counters {
		ch <- prom.MustNewConstMetric(c.desc, prom.CounterValue, float64(snapshot.Counters[c.id]))
	}

	for _, h := range p.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		sum := snapshot.HistogramSums[h.id].Seconds()
		ch <- prom.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], sum, buckets)
	}
}

// Handler serves the exporter from a private registry in the Prometheus text format.
func (p *PrometheusExporter) Handler() http.Handler {
	reg := prom.NewPedanticRegistry()
	reg.MustRegister(p)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
