// Package metrics exposes Prometheus instrumentation for batch prediction
// runs, plus an optional HTTP endpoint serving them during long runs.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsProcessed counts input records that have been predicted
	RecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "predict_records_processed_total",
			Help: "Total number of input records that have been predicted.",
		},
	)

	// PredictBatchSize is a histogram for tracking prediction batch sizes
	PredictBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predict_batch_size",
			Help:    "Histogram of batch sizes passed to the predictor.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	// PredictLatencySeconds is a histogram for predictor-only latency
	PredictLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predict_latency_seconds",
			Help:    "Histogram of predictor latency (seconds) per batch, excluding I/O.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// RecordBatch records the size of one predicted batch and bumps the record
// counter accordingly.
func RecordBatch(size int) {
	PredictBatchSize.Observe(float64(size))
	RecordsProcessed.Add(float64(size))
}

// RecordPredictLatency records the latency of one predictor call
func RecordPredictLatency(seconds float64) {
	PredictLatencySeconds.Observe(seconds)
}

// StartServer exposes /metrics on the given port and returns the server so
// the caller can shut it down. Long batch runs can be watched with it; short
// ones simply never enable it.
func StartServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// A listen failure only costs observability, never the run itself.
		_ = server.ListenAndServe()
	}()

	return server
}
