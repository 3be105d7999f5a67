package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	memoryRSSMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runner_memory_rss_mb",
			Help: "Current resident set size of the Runner process in megabytes.",
		},
	)

	cpuPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runner_cpu_percent",
			Help: "Current CPU usage percent of the Runner process.",
		},
	)

	serviceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runner_service_call_duration_seconds",
			Help:    "Duration of outbound service calls by service name and success.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service_name", "operation", "success"},
	)
)

// publishSample exports the sampler's latest reading to the process-wide
// Prometheus registry; publishCall does the same for one tracked call.
func publishSample(s Sample) {
	memoryRSSMB.Set(s.MemoryRSSMB)
	cpuPercent.Set(s.CPUPercent)
}

func publishCall(call ServiceCall) {
	success := "true"
	if !call.Success {
		success = "false"
	}
	serviceCallDuration.WithLabelValues(call.ServiceName, call.Operation, success).Observe(call.Duration.Seconds())
}
