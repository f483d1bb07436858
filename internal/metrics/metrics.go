package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studiorent"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_queries_total",
			Help:      "Count of studio availability searches by result.",
		},
		[]string{"result"},
	)

	blockMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_mutations_total",
			Help:      "Count of calendar block writes by operation and result.",
		},
		[]string{"op", "result"},
	)

	happyHourRegenerations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "happy_hour_regenerations_total",
			Help:      "Count of happy-hour slot regenerations from calendar settings.",
		},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Count of API requests rejected by the rate limiter.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, availabilityQueries, blockMutations, happyHourRegenerations, rateLimited)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAvailabilityQuery(result string) {
	availabilityQueries.WithLabelValues(result).Inc()
}

func IncBlockMutation(op, result string) {
	blockMutations.WithLabelValues(op, result).Inc()
}

func IncHappyHourRegeneration() {
	happyHourRegenerations.Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}
