// Package gateway runs the single event loop that applies client events to
// the room directory and delivers the results to connections.
package gateway

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"telestrations/internal/drawings"
	"telestrations/internal/events"
	"telestrations/internal/metrics"
	"telestrations/internal/registry"
	"telestrations/internal/rooms"
	"telestrations/internal/wshub"
)

const (
	DefaultSweepInterval = 120 * time.Second

	// How long the loop waits when every pending replay is stalled on a full
	// send buffer.
	replayBackoff = 10 * time.Millisecond
)

// Journal receives an audit record of room activity. Implementations must not
// block the caller.
type Journal interface {
	RoomCreated(roomID, hostID string)
	RoomClosed(roomID, reason string)
	DrawingSaved(roomID string, d drawings.Drawing)
}

type nopJournal struct{}

func (nopJournal) RoomCreated(string, string) {}
func (nopJournal) RoomClosed(string, string) {}
func (nopJournal) DrawingSaved(string, drawings.Drawing) {}

type Options struct {
	SweepInterval time.Duration
	Journal       Journal
	Metrics       *metrics.Metrics
}

type Gateway struct {
	rooms   *rooms.Store
	conns   *registry.Registry
	hub     *wshub.Hub
	bus     *events.Bus
	journal Journal
	metrics *metrics.Metrics
	sweep   time.Duration

	// Owned by the Run goroutine.
	replays []*replayJob
	next    int

	done chan struct{}
	log  *logrus.Entry
}

func New(store *rooms.Store, conns *registry.Registry, hub *wshub.Hub, bus *events.Bus, opts Options) *Gateway {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Journal == nil {
		opts.Journal = nopJournal{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return &Gateway{
		rooms:   store,
		conns:   conns,
		hub:     hub,
		bus:     bus,
		journal: opts.Journal,
		metrics: opts.Metrics,
		sweep:   opts.SweepInterval,
		done:    make(chan struct{}),
		log:     logrus.WithField("component", "gateway"),
	}
}

// Register adds a connection to the hub.
func (g *Gateway) Register(c *wshub.Client) {
	g.hub.Register(c)
	g.metrics.Connections.Set(float64(g.hub.Count()))
	g.log.WithField("conn_id", c.ID).Info("Client connected")
}

// Submit queues a client event for the loop. It returns false once the loop
// has stopped.
func (g *Gateway) Submit(connID string, msg events.ClientMessage) bool {
	select {
	case <-g.done:
		return false
	default:
	}
	select {
	case <-g.done:
		return false
	case g.bus.Inbound <- events.Inbound{ConnID: connID, Message: msg}:
		return true
	}
}

// Disconnect queues the synthesized disconnect event for connID. When the loop
// is gone the connection is dropped from the hub directly.
func (g *Gateway) Disconnect(connID string) {
	if !g.Submit(connID, events.ClientMessage{Event: events.Disconnect}) {
		g.hub.Unregister(connID)
	}
}

// Run processes events until ctx is cancelled. Queued events and the sweep
// tick take priority over replay steps.
func (g *Gateway) Run(ctx context.Context) {
	defer close(g.done)

	ticker := time.NewTicker(g.sweep)
	defer ticker.Stop()

	g.log.WithField("sweep_interval", g.sweep).Info("Gateway started")
	defer g.log.Info("Gateway stopped")

	for {
		if len(g.replays) == 0 {
			select {
			case <-ctx.Done():
				return
			case in := <-g.bus.Inbound:
				g.handle(in)
			case <-ticker.C:
				g.sweepEmpty()
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case in := <-g.bus.Inbound:
			g.handle(in)
			continue
		case <-ticker.C:
			g.sweepEmpty()
			continue
		default:
		}

		if g.stepReplays() {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case in := <-g.bus.Inbound:
			g.handle(in)
		case <-ticker.C:
			g.sweepEmpty()
		case <-time.After(replayBackoff):
		}
	}
}

// Done is closed when Run returns.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// sweepEmpty destroys rooms whose last member left without a clean leave.
func (g *Gateway) sweepEmpty() {
	removed := g.rooms.RemoveEmpty()
	for _, code := range removed {
		g.roomDestroyed(code, rooms.ReasonSwept)
	}
	if len(removed) > 0 {
		g.log.WithField("count", len(removed)).Info("Swept empty rooms")
	}
}
