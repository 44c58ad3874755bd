package rbac

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for authorization decisions and the
// capability cache. A nil *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	cache     *prometheus.CounterVec
	mutations *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// NewMetrics registers the collectors against registerer. When registerer is
// nil the default Prometheus registerer is used once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultMetricsOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parishdesk_authz_decisions_total",
		Help: "Clearance guard decisions partitioned by check and outcome.",
	}, []string{"check", "outcome"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parishdesk_capability_cache_total",
		Help: "Capability cache lookups partitioned by result.",
	}, []string{"result"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parishdesk_rbac_mutations_total",
		Help: "Role and user mutations partitioned by operation and result.",
	}, []string{"op", "result"})
	registerer.MustRegister(decisions, cache, mutations)
	return &Metrics{decisions: decisions, cache: cache, mutations: mutations}
}

func (m *Metrics) decision(check string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.decisions.WithLabelValues(check, outcome).Inc()
}

func (m *Metrics) cacheResult(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) mutation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
		if !classified(err) || isStorage(err) {
			result = "error"
		}
	}
	m.mutations.WithLabelValues(op, result).Inc()
}
