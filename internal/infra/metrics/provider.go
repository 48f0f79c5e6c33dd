package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(providerCallLatencyMs)
}

var providerCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "billing_provider_call_latency_ms",
		Help:    "Billing provider call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
	},
	[]string{"op", "success"},
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveProviderCall(op string, success bool, elapsed time.Duration) {
	providerCallLatencyMs.WithLabelValues(norm(op), strconv.FormatBool(success)).
		Observe(float64(elapsed.Milliseconds()))
}
