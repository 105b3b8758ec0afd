// Package metrics records poll and fusion activity in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/betbot/opsboard/internal/domain"
)

// Recorder implements poll.Observer and counts fusion cycles.
type Recorder struct {
	fetches   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	discarded *prometheus.CounterVec
	inflight  *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
	fusions   prometheus.Counter
	health    *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg means a private registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsboard_poll_fetches_total",
				Help: "Fetches issued per poll channel",
			},
			[]string{"channel"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsboard_poll_failures_total",
				Help: "Failed fetches per poll channel",
			},
			[]string{"channel"},
		),
		discarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsboard_poll_discarded_total",
				Help: "Responses dropped because they were stale or arrived after stop",
			},
			[]string{"channel"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "opsboard_poll_in_flight",
				Help: "Fetches currently in flight per poll channel",
			},
			[]string{"channel"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsboard_poll_fetch_duration_seconds",
				Help:    "Fetch duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"channel"},
		),
		fusions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsboard_fusion_cycles_total",
			Help: "Completed fusion cycles",
		}),
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "opsboard_entities",
				Help: "Strategies per health state in the latest board",
			},
			[]string{"health"},
		),
	}
	reg.MustRegister(r.fetches, r.failures, r.discarded, r.inflight, r.latency, r.fusions, r.health)
	return r
}

func (r *Recorder) FetchStarted(channel string) {
	r.fetches.WithLabelValues(channel).Inc()
	r.inflight.WithLabelValues(channel).Inc()
}

func (r *Recorder) FetchFinished(channel string, took time.Duration, err error) {
	r.inflight.WithLabelValues(channel).Dec()
	r.latency.WithLabelValues(channel).Observe(took.Seconds())
	if err != nil {
		r.failures.WithLabelValues(channel).Inc()
	}
}

func (r *Recorder) ResponseDiscarded(channel string) {
	r.discarded.WithLabelValues(channel).Inc()
}

// FusionCompleted records one fusion cycle and the health distribution it produced.
func (r *Recorder) FusionCompleted(counts map[domain.Health]int) {
	r.fusions.Inc()
	for _, h := range []domain.Health{domain.HealthOK, domain.HealthWarn, domain.HealthError} {
		r.health.WithLabelValues(string(h)).Set(float64(counts[h]))
	}
}
