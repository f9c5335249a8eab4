package prom

import (
	"time"

	"github.com/IvanBrykalov/querycache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	dedups        prometheus.Counter
	invalidations prometheus.Counter
	fetches       *prometheus.CounterVec
	fetchSeconds  prometheus.Histogram
	evicts        *prometheus.CounterVec
	sizeEnt       prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		hits:          counter("hits_total", "Observations served without a fetch"),
		misses:        counter("misses_total", "Observations that started a fetch"),
		dedups:        counter("dedup_total", "Fetch triggers joined to a fetch already in flight"),
		invalidations: counter("invalidations_total", "Query invalidations"),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "fetches_total",
				Help:        "Finished fetches by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		fetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "fetch_duration_seconds",
			Help:        "Fetch latency",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entry evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.dedups, a.invalidations, a.fetches, a.fetchSeconds, a.evicts, a.sizeEnt)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Dedup() { a.dedups.Inc() }

func (a *Adapter) Invalidate() { a.invalidations.Inc() }

// Fetch counts a finished fetch and observes its latency.
func (a *Adapter) Fetch(o cache.FetchOutcome, took time.Duration) {
	a.fetches.WithLabelValues(outcome(o)).Inc()
	a.fetchSeconds.Observe(took.Seconds())
}

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// Size updates the resident entries gauge.
func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictIdle:
		return "idle"
	default:
		return "closed"
	}
}

func outcome(o cache.FetchOutcome) string {
	if o == cache.FetchApplied {
		return "applied"
	}
	return "discarded"
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
