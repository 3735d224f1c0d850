// Package metrics exports the daemon state in the Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlie0129/followd/pkg/types"
)

const namespace = "followd"

var phases = []types.Phase{
	types.PhaseIdle,
	types.PhaseAPMode,
	types.PhaseConnecting,
	types.PhaseConnected,
}

// Source is read on every scrape.
type Source interface {
	Status() types.Status
	LastError() types.ErrorKind
	Phase() types.Phase
}

type Metrics struct {
	registry *prometheus.Registry

	updates     prometheus.Counter
	fetchErrors *prometheus.CounterVec
}

func New(src Source) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follower_updates_total",
			Help:      "Successful follower count fetches.",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Recorded errors by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.updates,
		m.fetchErrors,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "follower_count",
			Help:      "Last fetched follower count, -1 before the first fetch.",
		}, func() float64 { return float64(src.Status().FollowerCount) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wifi_connected",
			Help:      "1 if the station link is up.",
		}, func() float64 {
			if src.Status().WiFiStatus == types.WiFiConnected {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_error",
			Help:      "Code of the most recent error, 0 for none.",
		}, func() float64 { return float64(src.LastError()) }),
		&phaseCollector{src: src, desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "phase"),
			"Current provisioning phase.",
			[]string{"phase"}, nil,
		)},
	)

	return m
}

// ObserveUpdate counts a successful fetch.
func (m *Metrics) ObserveUpdate() {
	m.updates.Inc()
}

// ObserveError counts a recorded error. ErrorNone is ignored.
func (m *Metrics) ObserveError(kind types.ErrorKind) {
	if kind == types.ErrorNone {
		return
	}
	m.fetchErrors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type phaseCollector struct {
	src  Source
	desc *prometheus.Desc
}

func (c *phaseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *phaseCollector) Collect(ch chan<- prometheus.Metric) {
	current := c.src.Phase()
	for _, p := range phases {
		v := 0.0
		if p == current {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, v, string(p))
	}
}
