package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telestrations/internal/events"
	"telestrations/internal/metrics"
	"telestrations/internal/registry"
	"telestrations/internal/rooms"
	"telestrations/internal/wshub"
)

func waitMessage(t *testing.T, c *wshub.Client) events.ServerMessage {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg events.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message to %s", c.ID)
	}
	return events.ServerMessage{}
}

func startGateway(t *testing.T, sweep time.Duration) (*Gateway, *rooms.Store, context.CancelFunc) {
	t.Helper()
	store := rooms.NewStore(rooms.DefaultConfig())
	g := New(store, registry.New(), wshub.NewHub(), events.NewBus(8), Options{
		SweepInterval: sweep,
		Metrics:       metrics.New(prometheus.NewRegistry()),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-g.Done()
	})
	return g, store, cancel
}

func TestRun_EndToEnd(t *testing.T) {
	g, store, _ := startGateway(t, time.Hour)
	alice := &wshub.Client{ID: "alice", Send: make(chan []byte, 16)}
	bob := &wshub.Client{ID: "bob", Send: make(chan []byte, 16)}
	g.Register(alice)
	g.Register(bob)

	require.True(t, g.Submit("alice", events.ClientMessage{Event: events.CreateRoom, Username: "alice"}))
	created := waitMessage(t, alice)
	require.Equal(t, events.RoomCreated, created.Event)

	require.True(t, g.Submit("bob", events.ClientMessage{Event: events.JoinRoom, RoomID: created.RoomID, Username: "bob"}))
	assert.Equal(t, events.RoomJoined, waitMessage(t, bob).Event)
	assert.Equal(t, events.UserJoined, waitMessage(t, bob).Event)
	assert.Equal(t, events.UserJoined, waitMessage(t, alice).Event)

	g.Submit("bob", events.ClientMessage{Event: events.SaveDrawing, RoomID: created.RoomID, DrawingDataURL: pngDataURL(t, 4)})
	assert.Equal(t, events.DrawingSaved, waitMessage(t, bob).Event)

	g.Submit("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: created.RoomID})
	assert.Equal(t, events.ViewAllDrawings, waitMessage(t, alice).Event)
	data := waitMessage(t, alice)
	assert.Equal(t, events.DrawingData, data.Event)
	require.NotNil(t, data.Index)
	assert.Equal(t, 0, *data.Index)
	assert.Equal(t, events.ViewAllDrawingsFinished, waitMessage(t, alice).Event)

	g.Disconnect("alice")
	assert.Eventually(t, func() bool { return store.Get(created.RoomID) == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestRun_SweepsOnTicker(t *testing.T) {
	_, store, _ := startGateway(t, 20*time.Millisecond)
	room, err := store.Create("EMPTY", "ghost", "ghost")
	require.NoError(t, err)
	room.RemoveUser("ghost")

	assert.Eventually(t, func() bool { return store.Get("EMPTY") == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitAfterStop(t *testing.T) {
	g, _, cancel := startGateway(t, time.Hour)
	c := &wshub.Client{ID: "c1", Send: make(chan []byte, 1)}
	g.Register(c)

	cancel()
	<-g.Done()

	assert.False(t, g.Submit("c1", events.ClientMessage{Event: events.CreateRoom}))
	g.Disconnect("c1")
	assert.True(t, c.Closed())
}
