package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics counts cache outcomes per key namespace (search, reco, product, cart).
type CacheMetrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	errors *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache reads served from Redis.",
	}, []string{"namespace"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache reads that fell through to the stores.",
	}, []string{"namespace"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_errors_total",
		Help: "Cache operations that failed and degraded to the stores.",
	}, []string{"namespace", "op"})
	reg.MustRegister(hits, misses, errs)
	return &CacheMetrics{hits: hits, misses: misses, errors: errs}
}

func (c *CacheMetrics) Hit(namespace string) {
	if c == nil || c.hits == nil {
		return
	}
	c.hits.WithLabelValues(normalizeLabel(namespace)).Inc()
}

func (c *CacheMetrics) Miss(namespace string) {
	if c == nil || c.misses == nil {
		return
	}
	c.misses.WithLabelValues(normalizeLabel(namespace)).Inc()
}

func (c *CacheMetrics) Error(namespace, op string) {
	if c == nil || c.errors == nil {
		return
	}
	c.errors.WithLabelValues(normalizeLabel(namespace), normalizeLabel(op)).Inc()
}
