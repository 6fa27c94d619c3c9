// Package metrics provides Prometheus metrics collection for ranking runs.
// It defines per-selector run, failure, timeout and duration metrics plus
// dataset and consensus gauges. Runs are batch jobs, so the metrics are
// written to a node-exporter textfile instead of being served.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a ranking run.
type Metrics struct {
	// Selector metrics, labelled by selector name
	SelectorRuns     *prometheus.CounterVec   // Total number of selector runs
	SelectorFailures *prometheus.CounterVec   // Selector runs that produced no votes
	SelectorTimeouts *prometheus.CounterVec   // Selector runs cut off by the per-selector timeout
	SelectorDuration *prometheus.HistogramVec // Wall-clock duration of selector runs
	SelectedFeatures *prometheus.GaugeVec     // Features selected in the latest run

	// Dataset and consensus metrics
	DatasetRows      prometheus.Gauge     // Rows in the latest feature matrix
	DatasetFeatures  prometheus.Gauge     // Columns in the latest feature matrix
	Aggregations     prometheus.Counter   // Completed consensus rankings
	RecodeErrors     prometheus.Counter   // Tables rejected while recoding
	ConsensusTopVote prometheus.Gauge     // Vote count of the top-ranked feature
	FeatureVotes     *prometheus.GaugeVec // Votes per feature in the latest ranking

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SelectorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ksi_selector_runs_total",
			Help: "Total number of selector runs",
		}, []string{"selector"}),
		SelectorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ksi_selector_failures_total",
			Help: "Total number of selector runs that produced no votes",
		}, []string{"selector"}),
		SelectorTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ksi_selector_timeouts_total",
			Help: "Total number of selector runs cut off by the timeout",
		}, []string{"selector"}),
		SelectorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ksi_selector_duration_seconds",
			Help:    "Duration of selector runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"selector"}),
		SelectedFeatures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ksi_selected_features",
			Help: "Number of features selected in the latest run",
		}, []string{"selector"}),
		DatasetRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ksi_dataset_rows",
			Help: "Rows in the latest feature matrix",
		}),
		DatasetFeatures: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ksi_dataset_features",
			Help: "Feature columns in the latest feature matrix",
		}),
		Aggregations: factory.NewCounter(prometheus.CounterOpts{
			Name: "ksi_aggregations_total",
			Help: "Total number of completed consensus rankings",
		}),
		RecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ksi_recode_errors_total",
			Help: "Total number of tables rejected while recoding",
		}),
		ConsensusTopVote: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ksi_consensus_top_votes",
			Help: "Vote count of the top-ranked feature",
		}),
		FeatureVotes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ksi_feature_votes",
			Help: "Selectors that kept each feature in the latest ranking",
		}, []string{"feature"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ksi_errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// ObserveDataset records the shape of the matrix a run worked on.
func (m *Metrics) ObserveDataset(rows, features int) {
	m.DatasetRows.Set(float64(rows))
	m.DatasetFeatures.Set(float64(features))
}

// GetFailureRate returns failed selector runs over all selector runs gathered
// from g, or 0 when nothing ran.
func GetFailureRate(g prometheus.Gatherer) float64 {
	var runs, failures float64

	metricFamilies, err := g.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ksi_selector_runs_total":
			for _, m := range mf.Metric {
				runs += m.GetCounter().GetValue()
			}
		case "ksi_selector_failures_total":
			for _, m := range mf.Metric {
				failures += m.GetCounter().GetValue()
			}
		}
	}

	if runs == 0 {
		return 0
	}
	return failures / runs
}

// WriteTextfile writes everything gathered from g to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
