package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts dispatched cart actions by outcome (applied, noop, error).
	CartMutationsTotal *prometheus.CounterVec
	// CartStateResetsTotal counts persisted cart states discarded at load time.
	CartStateResetsTotal *prometheus.CounterVec
	// CatalogCacheLookupsTotal counts catalog cache lookups by result (hit, miss, shared).
	CatalogCacheLookupsTotal *prometheus.CounterVec
	// CheckoutIntentTotal counts payment intent creation attempts.
	CheckoutIntentTotal *prometheus.CounterVec
	// CheckoutCompleteTotal counts checkout completion outcomes.
	CheckoutCompleteTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics creates the cart, catalog and checkout collectors and registers
// them on reg (the default registerer when nil). Only the first call has an effect.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		counter := func(name, help string, labels ...string) *prometheus.CounterVec {
			return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			}, labels))
		}
		CartMutationsTotal = counter("cart_mutations_total", "Dispatched cart actions by outcome.", "action", "result")
		CartStateResetsTotal = counter("cart_state_resets_total", "Persisted cart states discarded while loading.", "reason")
		CatalogCacheLookupsTotal = counter("catalog_cache_lookups_total", "Catalog cache lookups by result.", "result")
		CheckoutIntentTotal = counter("checkout_intent_total", "Payment intent outcomes by provider.", "provider", "result")
		CheckoutCompleteTotal = counter("checkout_complete_total", "Checkout completion outcomes.", "result")
	})
}

// ObserveCartMutation records a cart action outcome when domain metrics are registered.
func ObserveCartMutation(action, result string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(action, result).Inc()
	}
}

// ObserveCartReset records a discarded persisted state.
func ObserveCartReset(reason string) {
	if CartStateResetsTotal != nil {
		CartStateResetsTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveCatalogLookup records a catalog cache lookup result.
func ObserveCatalogLookup(result string) {
	if CatalogCacheLookupsTotal != nil {
		CatalogCacheLookupsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCheckoutIntent records a payment intent outcome.
func ObserveCheckoutIntent(provider, result string) {
	if CheckoutIntentTotal != nil {
		CheckoutIntentTotal.WithLabelValues(provider, result).Inc()
	}
}

// ObserveCheckoutComplete records a checkout completion outcome.
func ObserveCheckoutComplete(result string) {
	if CheckoutCompleteTotal != nil {
		CheckoutCompleteTotal.WithLabelValues(result).Inc()
	}
}
