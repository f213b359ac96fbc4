package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesTotal counts priced lines by pricing mode and outcome.
	QuotesTotal *prometheus.CounterVec
	// RuleMatchesTotal counts rules applied across authoritative passes.
	RuleMatchesTotal prometheus.Counter
	// AuditEnqueuedTotal counts audit task enqueue outcomes.
	AuditEnqueuedTotal *prometheus.CounterVec
	// RuleCacheTotal counts active-rule cache lookups by outcome.
	RuleCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers pricing-domain
// Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of priced quote lines by pricing mode and result.",
		}, []string{"mode", "result"})
		RuleMatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Total number of pricing rules applied to quoted lines.",
		})
		AuditEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_enqueued_total",
			Help:      "Count of quote audit enqueue attempts by outcome.",
		}, []string{"result"})
		RuleCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_cache_total",
			Help:      "Count of active-rule cache lookups by outcome.",
		}, []string{"result"})

		registerDomainCollector(reg, QuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuotesTotal = v
			}
		})
		registerDomainCollector(reg, RuleMatchesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RuleMatchesTotal = v
			}
		})
		registerDomainCollector(reg, AuditEnqueuedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AuditEnqueuedTotal = v
			}
		})
		registerDomainCollector(reg, RuleCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RuleCacheTotal = v
			}
		})
	})
}

func registerDomainCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
