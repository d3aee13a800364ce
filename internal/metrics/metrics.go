package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for roomsync.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	BroadcastsTotal   prometheus.Counter
	SendFailuresTotal prometheus.Counter
	RoomsCreatedTotal prometheus.Counter
	RoomsDeleted      *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// Event outcomes used as the "outcome" label of EventsTotal.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// New creates and registers all Prometheus metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates and registers all metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "roomsync_connections_total",
			Help: "Total WebSocket connections accepted",
		}),
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "roomsync_active_connections",
			Help: "Current open WebSocket connections",
		}),
		ActiveRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "roomsync_active_rooms",
			Help: "Rooms with at least one registered connection",
		}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomsync_events_total",
			Help: "Inbound events by kind and outcome",
		}, []string{"event", "outcome"}),
		BroadcastsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "roomsync_broadcasts_total",
			Help: "Room updates fanned out to a room",
		}),
		SendFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "roomsync_send_failures_total",
			Help: "Outbound messages dropped by a connection",
		}),
		RoomsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "roomsync_rooms_created_total",
			Help: "Rooms created through the API",
		}),
		RoomsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomsync_rooms_deleted_total",
			Help: "Rooms deleted by reason",
		}, []string{"reason"}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roomsync_errors_total",
			Help: "Total errors",
		}, []string{"type"}),
	}
}
