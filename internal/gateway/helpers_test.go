package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"telestrations/internal/drawings"
	"telestrations/internal/events"
	"telestrations/internal/metrics"
	"telestrations/internal/registry"
	"telestrations/internal/rooms"
	"telestrations/internal/wshub"
)

type journalEntry struct {
	kind   string
	roomID string
	detail string
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []journalEntry
}

func (j *recordingJournal) add(e journalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *recordingJournal) RoomCreated(roomID, hostID string) {
	j.add(journalEntry{"created", roomID, hostID})
}

func (j *recordingJournal) RoomClosed(roomID, reason string) {
	j.add(journalEntry{"closed", roomID, reason})
}

func (j *recordingJournal) DrawingSaved(roomID string, d drawings.Drawing) {
	j.add(journalEntry{"drawing", roomID, d.ConnID})
}

func (j *recordingJournal) all() []journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journalEntry(nil), j.entries...)
}

type harness struct {
	g       *Gateway
	store   *rooms.Store
	conns   *registry.Registry
	hub     *wshub.Hub
	journal *recordingJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   rooms.NewStore(rooms.Config{MaxDrawingBytes: 1 << 20}),
		conns:   registry.New(),
		hub:     wshub.NewHub(),
		journal: &recordingJournal{},
	}
	h.g = New(h.store, h.conns, h.hub, events.NewBus(16), Options{
		Journal: h.journal,
		Metrics: metrics.New(prometheus.NewRegistry()),
	})
	return h
}

func (h *harness) connect(id string, buffer int) *wshub.Client {
	c := &wshub.Client{ID: id, Send: make(chan []byte, buffer)}
	h.g.Register(c)
	return c
}

func (h *harness) do(connID string, msg events.ClientMessage) {
	h.g.handle(events.Inbound{ConnID: connID, Message: msg})
}

// recv pops the next queued message for c.
func recv(t *testing.T, c *wshub.Client) events.ServerMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel for %s closed", c.ID)
		var msg events.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatalf("no message queued for %s", c.ID)
	}
	return events.ServerMessage{}
}

func requireEmpty(t *testing.T, c *wshub.Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message for %s: %s", c.ID, data)
	default:
	}
}

// pngDataURL encodes a w x 1 PNG so drawings can be told apart by width.
func pngDataURL(t *testing.T, w int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, 1))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
