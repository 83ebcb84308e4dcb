// Package metrics exposes Prometheus collectors for room and connection activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "telestrations"

type Metrics struct {
	RoomsCreated     prometheus.Counter
	RoomsDestroyed   *prometheus.CounterVec
	RoomsActive      prometheus.Gauge
	Connections      prometheus.Gauge
	Events           *prometheus.CounterVec
	DrawingsSaved    prometheus.Counter
	DrawingsRejected prometheus.Counter
	ReplaysCompleted prometheus.Counter
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RoomsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created.",
		}),
		RoomsDestroyed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_destroyed_total",
			Help:      "Rooms destroyed, by reason.",
		}, []string{"reason"}),
		RoomsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms currently in the directory.",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket connections.",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Client events handled, by event name.",
		}, []string{"event"}),
		DrawingsSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drawings_saved_total",
			Help:      "Drawings accepted.",
		}),
		DrawingsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drawings_rejected_total",
			Help:      "Drawing submissions refused.",
		}),
		ReplaysCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_completed_total",
			Help:      "Drawing replays delivered through to the finished signal.",
		}),
	}
}

// WatchJournalDrops exports the journal's running count of discarded events.
func WatchJournalDrops(reg prometheus.Registerer, dropped func() int64) prometheus.CounterFunc {
	return promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "journal_dropped_total",
		Help:      "Room events discarded because the journal buffer was full.",
	}, func() float64 {
		return float64(dropped())
	})
}
