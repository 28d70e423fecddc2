// Package metrics provides Prometheus metrics for the engine, RTSP clients
// and the UDP relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teecast"

var (
	engineStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "starts_total",
		Help:      "Engine pipeline starts",
	}, []string{"pipeline"})

	engineStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "stops_total",
		Help:      "Engine pipeline exits by reason",
	}, []string{"pipeline", "reason"})

	engineRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "running",
		Help:      "1 while the engine pipeline is running",
	}, []string{"pipeline"})

	engineEncoders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "encoders",
		Help:      "Hardware encoders in the pipeline graph",
	}, []string{"pipeline"})
)

// Stop reasons for RecordEngineStop.
const (
	StopRequested = "requested"
	StopEOS       = "eos"
	StopError     = "error"
)

// RecordEngineStart counts a pipeline start and marks it running.
func RecordEngineStart(pipeline string) {
	engineStarts.WithLabelValues(pipeline).Inc()
	engineRunning.WithLabelValues(pipeline).Set(1)
}

// RecordEngineStop counts a pipeline exit and marks it stopped.
func RecordEngineStop(pipeline, reason string) {
	engineStops.WithLabelValues(pipeline, reason).Inc()
	engineRunning.WithLabelValues(pipeline).Set(0)
}

// SetEncoders sets the number of encoders a pipeline graph contains.
func SetEncoders(pipeline string, n int) {
	engineEncoders.WithLabelValues(pipeline).Set(float64(n))
}

// DeleteEngineMetrics removes the gauges for a pipeline.
func DeleteEngineMetrics(pipeline string) {
	engineRunning.DeleteLabelValues(pipeline)
	engineEncoders.DeleteLabelValues(pipeline)
}

// Handler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}
