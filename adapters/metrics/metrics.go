// Package metrics provides Prometheus metrics for the action pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/artpar/actionkit/core/action"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "actionkit"

// Collector holds all Prometheus metrics. It implements action.Observer.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Pipeline metrics
	ShortCircuits  *prometheus.CounterVec
	Exceptions     *prometheus.CounterVec
	ErrorResponses *prometheus.CounterVec
	AuthFailures   *prometheus.CounterVec
	Throttled      *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),

		ShortCircuits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filter_short_circuits_total",
				Help:      "Requests answered by a filter before the handler ran",
			},
			[]string{"route", "category"},
		),
		Exceptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exceptions_total",
				Help:      "Errors raised in the action stage, by whether an exception filter handled them",
			},
			[]string{"route", "handled"},
		),
		ErrorResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "error_responses_total",
				Help:      "Error envelopes written, by status code",
			},
			[]string{"route", "status"},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Requests rejected with 401 or 403",
			},
			[]string{"route", "reason"},
		),
		Throttled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "throttled_total",
				Help:      "Requests rejected by the throttle filter",
			},
			[]string{"route"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// ShortCircuit implements action.Observer.
func (c *Collector) ShortCircuit(route string, by action.Category) {
	c.ShortCircuits.WithLabelValues(route, by.String()).Inc()
}

// Exception implements action.Observer.
func (c *Collector) Exception(route string, handled bool) {
	c.Exceptions.WithLabelValues(route, strconv.FormatBool(handled)).Inc()
}

// ErrorResponse implements action.Observer.
func (c *Collector) ErrorResponse(route string, status int) {
	c.ErrorResponses.WithLabelValues(route, strconv.Itoa(status)).Inc()
	switch status {
	case 401:
		c.AuthFailures.WithLabelValues(route, "unauthenticated").Inc()
	case 403:
		c.AuthFailures.WithLabelValues(route, "forbidden").Inc()
	}
}

// ThrottleRejected counts a throttled request. It matches the throttle
// filter's OnReject hook.
func (c *Collector) ThrottleRejected(route string) {
	c.Throttled.WithLabelValues(route).Inc()
}

// ObserveRequest records one finished request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	label := StatusLabel(status)
	c.RequestsTotal.WithLabelValues(method, route, label).Inc()
	c.RequestDuration.WithLabelValues(method, route, label).Observe(d.Seconds())
}

// ConfigReloaded records a reload attempt.
func (c *Collector) ConfigReloaded(err error, at time.Time) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// StatusLabel buckets a status code into its class.
func StatusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

var _ action.Observer = (*Collector)(nil)
