package materialize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// plansBuilt counts construction plans compiled, by variant
	// ("full" or "empty").
	plansBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "temporaltables_materializer_plans_built_total",
		Help: "Construction plans compiled, by variant",
	}, []string{"variant"})

	// planCacheHits counts materializer lookups served from the cache.
	planCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "temporaltables_materializer_plan_cache_hits_total",
		Help: "Materializer lookups served from the plan cache",
	})

	// planCacheMisses counts lookups that had to build.
	planCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "temporaltables_materializer_plan_cache_misses_total",
		Help: "Materializer lookups that built a new plan",
	})
)
