// Package metrics exposes room activity as prometheus collectors.
package metrics

import (
	"context"
	"net/http"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mucd"

type Metrics struct {
	reg *prometheus.Registry

	rooms     prometheus.Gauge
	occupants prometheus.Gauge
	events    *prometheus.CounterVec
	delivered *prometheus.CounterVec
	requests  *prometheus.CounterVec
}

// New registers the collectors in reg; a nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms",
			Help: "Rooms currently held in memory.",
		}),
		occupants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "occupants",
			Help: "Occupancies across all rooms.",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Membership events by kind.",
		}, []string{"kind"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Packets handed to sessions, by result.",
		}, []string{"result"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_total",
			Help: "Admin, registration and search requests by kind and condition.",
		}, []string{"kind", "condition"}),
	}
}

// OnEvent is an event bus listener.
func (m *Metrics) OnEvent(_ context.Context, ev domain.Event) error {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case domain.EventRoomCreated:
		m.rooms.Inc()
	case domain.EventRoomDestroyed:
		m.rooms.Dec()
	case domain.EventOccupantJoined:
		m.occupants.Inc()
	case domain.EventOccupantLeft, domain.EventOccupantKicked:
		m.occupants.Dec()
	}
	return nil
}

func (m *Metrics) ObserveDelivery(sent, failed int) {
	m.delivered.WithLabelValues("sent").Add(float64(sent))
	m.delivered.WithLabelValues("failed").Add(float64(failed))
}

// ObserveRequest counts a handled request; err may be nil.
func (m *Metrics) ObserveRequest(kind string, err error) {
	cond := "ok"
	if err != nil {
		cond = domain.Condition(err)
	}
	m.requests.WithLabelValues(kind, cond).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
