package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
}

// MetricsWrapper adapts Metrics to the per-selector interface the aggregator
// uses.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) SelectorRunsInc(selector string) {
	w.m.SelectorRuns.WithLabelValues(selector).Inc()
}

func (w *MetricsWrapper) SelectorFailuresInc(selector string) {
	w.m.SelectorFailures.WithLabelValues(selector).Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) SelectorTimeoutsInc(selector string) {
	w.m.SelectorTimeouts.WithLabelValues(selector).Inc()
}

func (w *MetricsWrapper) SelectorDurationObserve(selector string, seconds float64) {
	w.m.SelectorDuration.WithLabelValues(selector).Observe(seconds)
}

func (w *MetricsWrapper) SelectedFeaturesSet(selector string, n float64) {
	w.m.SelectedFeatures.WithLabelValues(selector).Set(n)
}

func (w *MetricsWrapper) AggregationsInc() {
	w.m.Aggregations.Inc()
}

func (w *MetricsWrapper) RecodeErrors() MetricsCounter {
	return &CounterWrapper{w.m.RecodeErrors}
}

func (w *MetricsWrapper) TopVotes() MetricsGauge {
	return &GaugeWrapper{w.m.ConsensusTopVote}
}

func (w *MetricsWrapper) FeatureVotesSet(feature string, votes int) {
	w.m.FeatureVotes.WithLabelValues(feature).Set(float64(votes))
}

func (w *MetricsWrapper) ObserveDataset(rows, features int) {
	w.m.ObserveDataset(rows, features)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}
