// Package metrics exposes binder lifecycle counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-go-golems/wsbind/pkg/binder"
)

const namespace = "wsbind"

// Collector implements binder.Observer.
type Collector struct {
	opened   prometheus.Counter
	closed   *prometheus.CounterVec
	bindings *prometheus.CounterVec
	messages *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var _ binder.Observer = (*Collector)(nil)

// NewCollector registers the wsbind metrics on reg. openConns and bound
// back the two gauges and may be nil.
func NewCollector(reg prometheus.Registerer, openConns, bound func() int) *Collector {
	c := &Collector{
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Connections accepted by the transport.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Connections closed, by initiating side.",
		}, []string{"remote"}),
		bindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bindings_total",
			Help:      "Successful binds, by whether a previous connection was evicted.",
		}, []string{"evicted"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages, by dispatch result.",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Application handler errors and panics, by stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(c.opened, c.closed, c.bindings, c.messages, c.failures)

	if openConns != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Currently open connections.",
		}, func() float64 { return float64(openConns()) }))
	}
	if bound != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_connections",
			Help:      "Connections currently bound to a session.",
		}, func() float64 { return float64(bound()) }))
	}
	return c
}

func (c *Collector) ConnectionOpened() { c.opened.Inc() }

func (c *Collector) ConnectionClosed(remote bool) {
	c.closed.WithLabelValues(strconv.FormatBool(remote)).Inc()
}

func (c *Collector) SessionBound(evicted bool) {
	c.bindings.WithLabelValues(strconv.FormatBool(evicted)).Inc()
}

func (c *Collector) MessageReceived(result binder.MessageResult) {
	c.messages.WithLabelValues(string(result)).Inc()
}

func (c *Collector) HandlerFailed(stage binder.Stage) {
	c.failures.WithLabelValues(string(stage)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
