package prom

import (
	"github.com/IvanBrykalov/bufcache/bufcache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements bufcache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	admits    *prometheus.CounterVec
	exhausted prometheus.Counter
	resident  prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Lookups satisfied by a resident buffer",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Lookups that had to admit a buffer",
			ConstLabels: constLabels,
		}),
		admits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "admissions_total",
				Help:        "Buffer admissions by kind",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "exhausted_total",
			Help:        "Lookups failed because no buffer was evictable",
			ConstLabels: constLabels,
		}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "resident_buffers",
			Help:        "Buffers holding valid block contents",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.admits, a.exhausted, a.resident)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Admit increments the admission counter with a kind label.
func (a *Adapter) Admit(k bufcache.AdmitKind) {
	a.admits.WithLabelValues(kind(k)).Inc()
}

// Exhausted increments the pool-exhaustion counter.
func (a *Adapter) Exhausted() { a.exhausted.Inc() }

// Size updates the resident-buffers gauge.
func (a *Adapter) Size(resident int) { a.resident.Set(float64(resident)) }

// kind maps AdmitKind to a stable label value.
func kind(k bufcache.AdmitKind) string {
	if k == bufcache.AdmitSteal {
		return "steal"
	}
	return "local"
}

// Compile-time check: ensure Adapter implements bufcache.Metrics.
var _ bufcache.Metrics = (*Adapter)(nil)
