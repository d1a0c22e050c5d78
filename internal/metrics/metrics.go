// Package metrics provides Prometheus instrumentation for the forecaster.
//
// Metrics exposed:
//   - supplylink_adapter_collect_seconds: Histogram of demand collection duration
//   - supplylink_adapter_collected_records: Gauge of records returned by the last collection
//   - supplylink_model_train_seconds: Histogram of full training cycle duration
//   - supplylink_model_predict_seconds: Histogram of prediction duration
//   - supplylink_model_training_samples: Gauge of rows used by the last training
//   - supplylink_model_r2_score: Gauge of the in-sample R² of the last training
//   - supplylink_model_last_trained_timestamp_seconds: Gauge of the last successful training time
//   - supplylink_predictions_total: Counter of predicted points served
//   - supplylink_errors_total: Counter of errors by component and reason
//
// Metrics implements pipeline.Recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/supplylink/supplylink-ml/pkg/models"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	AdapterCollectSeconds prometheus.Histogram
	CollectedRecords      prometheus.Gauge
	ModelTrainSeconds     prometheus.Histogram
	ModelPredictSeconds   prometheus.Histogram
	TrainingSamples       prometheus.Gauge
	R2Score               prometheus.Gauge
	LastTrainedTimestamp  prometheus.Gauge
	PredictionsTotal      prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec

	now func() time.Time
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		AdapterCollectSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "supplylink_adapter_collect_seconds",
			Help:    "Time spent collecting demand records from the data source",
			Buckets: prometheus.DefBuckets,
		}),

		CollectedRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "supplylink_adapter_collected_records",
			Help: "Number of demand records returned by the last collection",
		}),

		ModelTrainSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "supplylink_model_train_seconds",
			Help:    "Time spent on a full training cycle",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		ModelPredictSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "supplylink_model_predict_seconds",
			Help:    "Time spent producing a forecast",
			Buckets: prometheus.DefBuckets,
		}),

		TrainingSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "supplylink_model_training_samples",
			Help: "Rows used by the last successful training",
		}),

		R2Score: f.NewGauge(prometheus.GaugeOpts{
			Name: "supplylink_model_r2_score",
			Help: "In-sample R² of the last successful training",
		}),

		LastTrainedTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "supplylink_model_last_trained_timestamp_seconds",
			Help: "Unix time of the last successful training",
		}),

		PredictionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "supplylink_predictions_total",
			Help: "Total number of predicted points served",
		}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplylink_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),

		now: time.Now,
	}
}

// RecordCollect records a data source collection.
func (m *Metrics) RecordCollect(seconds float64, records int) {
	m.AdapterCollectSeconds.Observe(seconds)
	m.CollectedRecords.Set(float64(records))
}

// RecordTrain records a successful training cycle.
func (m *Metrics) RecordTrain(seconds float64, tm models.Metrics) {
	m.ModelTrainSeconds.Observe(seconds)
	m.TrainingSamples.Set(float64(tm.Samples))
	m.R2Score.Set(tm.R2Score)
	m.LastTrainedTimestamp.Set(float64(m.now().Unix()))
}

// RecordPredict records a successful prediction.
func (m *Metrics) RecordPredict(seconds float64, points int) {
	m.ModelPredictSeconds.Observe(seconds)
	m.PredictionsTotal.Add(float64(points))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
