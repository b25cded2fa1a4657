// Package metrics exposes controller state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/plant-waterer/internal/logic"
)

const namespace = "plant_waterer"

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	dryness    prometheus.Gauge
	readErrors prometheus.Counter
	events     *prometheus.CounterVec
	doses      *prometheus.CounterVec
	checkTime  prometheus.Gauge
	checkCount prometheus.Gauge
	watering   prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		dryness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dryness",
			Help:      "Last soil dryness reading (0 wet, 4095 dry).",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_errors_total",
			Help:      "Failed sensor reads.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_events_total",
			Help:      "Policy events by type.",
		}, []string{"type"}),
		doses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_delivered_total",
			Help:      "Doses of water delivered, by trigger.",
		}, []string{"trigger"}),
		checkTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_position",
			Help:      "Position within the safety window, in loop iterations.",
		}),
		checkCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_doses",
			Help:      "Doses delivered in the current safety window.",
		}),
		watering: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watering",
			Help:      "1 while the relay is open.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dryness, m.readErrors, m.events, m.doses,
		m.checkTime, m.checkCount, m.watering,
	)
	return m
}

// ObserveReading records a successful sensor read.
func (m *Metrics) ObserveReading(v uint16) {
	m.dryness.Set(float64(v))
}

// ReadError counts a failed sensor read.
func (m *Metrics) ReadError() {
	m.readErrors.Inc()
}

// ObserveEvent counts a policy event and any doses it delivered.
func (m *Metrics) ObserveEvent(e logic.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
	if e.Type != logic.EventWatered {
		return
	}
	trigger := "sensor"
	if e.Forced {
		trigger = "minimum"
	}
	m.doses.WithLabelValues(trigger).Add(float64(e.Doses))
}

// SetWindow records the safety window state.
func (m *Metrics) SetWindow(checkTime, checkCount int) {
	m.checkTime.Set(float64(checkTime))
	m.checkCount.Set(float64(checkCount))
}

// SetWatering records the relay state.
func (m *Metrics) SetWatering(on bool) {
	if on {
		m.watering.Set(1)
	} else {
		m.watering.Set(0)
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
