package offline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the controller's strategy counters.
type Metrics struct {
	Hits             *prometheus.CounterVec
	Misses           *prometheus.CounterVec
	NetworkFailures  *prometheus.CounterVec
	PrecacheFailures prometheus.Counter
}

// NewMetrics builds and registers the controller metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praktikum_offline_cache_hits_total",
			Help: "Requests answered from the cache, by strategy.",
		}, []string{"strategy"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praktikum_offline_cache_misses_total",
			Help: "Requests that found no cached entry, by strategy.",
		}, []string{"strategy"}),
		NetworkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "praktikum_offline_network_failures_total",
			Help: "Network fetch failures observed per strategy.",
		}, []string{"strategy"}),
		PrecacheFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "praktikum_offline_precache_failures_total",
			Help: "Entry points that could not be precached during install.",
		}),
	}
	reg.MustRegister(m.Hits, m.Misses, m.NetworkFailures, m.PrecacheFailures)
	return m
}
