// Package metrics exposes sampler counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/fixlen/internal/mcmc"
)

const namespace = "fixlen"

// Metrics owns a private registry so tests and multiple servers do not
// collide on the global one.
type Metrics struct {
	reg      *prometheus.Registry
	chains   *prometheus.CounterVec
	steps    *prometheus.CounterVec
	duration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		chains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_total",
			Help:      "Sampling chains run, by result.",
		}, []string{"result"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Metropolis-Hastings decisions, by kernel and outcome.",
		}, []string{"kernel", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_duration_seconds",
			Help:      "Wall time of a full chain.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	m.reg.MustRegister(
		m.chains, m.steps, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe counts one chain step. It implements mcmc.Observer.
func (m *Metrics) Observe(r mcmc.Record) error {
	if r.Step == 0 {
		return nil
	}
	outcome := "rejected"
	if r.Accepted {
		outcome = "accepted"
	}
	m.steps.WithLabelValues(r.Kernel, outcome).Inc()
	return nil
}

// ChainDone records a finished chain.
func (m *Metrics) ChainDone(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.chains.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

var _ mcmc.Observer = (*Metrics)(nil)
