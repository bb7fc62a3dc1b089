package collector

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the sync counters on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	units         *prometheus.CounterVec
	specialFailed prometheus.Counter
	backfill      *prometheus.CounterVec
	riotRequests  *prometheus.CounterVec
}

// NewMetrics creates and registers the collector metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riftledger_sync_units_total",
			Help: "Match ids processed by sync, by outcome.",
		}, []string{"outcome"}),
		specialFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riftledger_special_queue_failures_total",
			Help: "Special queue listings skipped after exhausting retries.",
		}),
		backfill: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riftledger_backfill_total",
			Help: "Backfill units, by pass and result.",
		}, []string{"pass", "result"}),
		riotRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riftledger_riot_requests_total",
			Help: "Riot API responses, by endpoint and status code.",
		}, []string{"endpoint", "status"}),
	}
	m.Registry.MustRegister(
		m.units,
		m.specialFailed,
		m.backfill,
		m.riotRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRiotRequest matches riot.WithRequestObserver.
func (m *Metrics) ObserveRiotRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.riotRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (m *Metrics) unit(o Outcome) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) specialQueueFailed() {
	if m == nil {
		return
	}
	m.specialFailed.Inc()
}

func (m *Metrics) backfillUnit(pass, result string) {
	if m == nil {
		return
	}
	m.backfill.WithLabelValues(pass, result).Inc()
}
