package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telestrations/internal/events"
	"telestrations/internal/wshub"
)

// seedRoom creates ROOM owned by alice holding n drawings of widths 1..n.
func seedRoom(t *testing.T, h *harness, n int) {
	t.Helper()
	room, err := h.store.Create("ROOM", "alice", "alice")
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err := room.SaveDrawing("alice", pngDataURL(t, i))
		require.NoError(t, err)
	}
}

// collectReplay steps replays until c has received the finished signal.
func collectReplay(t *testing.T, h *harness, c *wshub.Client) []events.ServerMessage {
	t.Helper()
	var got []events.ServerMessage
	for range 100 {
		if !h.g.stepReplays() && len(h.g.replays) == 0 {
			break
		}
		for len(c.Send) > 0 {
			msg := recv(t, c)
			got = append(got, msg)
			if msg.Event == events.ViewAllDrawingsFinished {
				return got
			}
		}
	}
	t.Fatalf("replay for %s did not finish; got %d messages", c.ID, len(got))
	return nil
}

func TestViewAllDrawings_OrderedReplay(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 16)
	bob := h.connect("bob", 16)
	seedRoom(t, h, 3)
	require.NoError(t, h.store.Get("ROOM").AddUser("bob", "bob"))

	h.do("bob", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})

	// Everyone in the room sees the trigger
	assert.Equal(t, events.ViewAllDrawings, recv(t, alice).Event)
	assert.Equal(t, events.ViewAllDrawings, recv(t, bob).Event)

	got := collectReplay(t, h, bob)
	require.Len(t, got, 4)
	want := h.store.Get("ROOM").Replay()
	for i := range 3 {
		assert.Equal(t, events.DrawingData, got[i].Event)
		require.NotNil(t, got[i].Index)
		assert.Equal(t, i, *got[i].Index)
		d, _ := want.Next()
		assert.Equal(t, d.DataURL, got[i].ImageData)
	}
	assert.Equal(t, events.ViewAllDrawingsFinished, got[3].Event)

	// Only the requester receives artifacts
	requireEmpty(t, alice)
	assert.Empty(t, h.g.replays)
}

func TestViewAllDrawings_EmptyRoomFinishesImmediately(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 8)
	seedRoom(t, h, 0)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	recv(t, alice)

	got := collectReplay(t, h, alice)
	require.Len(t, got, 1)
	assert.Equal(t, events.ViewAllDrawingsFinished, got[0].Event)
}

func TestViewAllDrawings_UnknownRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 8)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "NOPE"})

	requireEmpty(t, alice)
	assert.Empty(t, h.g.replays)
}

func TestViewAllDrawings_SnapshotIgnoresLaterSubmissions(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 16)
	seedRoom(t, h, 2)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	recv(t, alice)

	h.do("alice", events.ClientMessage{Event: events.SaveDrawing, RoomID: "ROOM", DrawingDataURL: pngDataURL(t, 9)})
	assert.Equal(t, events.DrawingSaved, recv(t, alice).Event)

	got := collectReplay(t, h, alice)
	require.Len(t, got, 3)
	assert.Equal(t, 0, *got[0].Index)
	assert.Equal(t, 1, *got[1].Index)
	assert.Equal(t, events.ViewAllDrawingsFinished, got[2].Event)
	assert.Equal(t, 3, h.store.Get("ROOM").DrawingCount())
}

func TestReplay_FullBufferDoesNotSkip(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 1)
	seedRoom(t, h, 3)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	// The trigger occupies the only slot
	assert.False(t, h.g.stepReplays(), "replay should stall on a full buffer")
	assert.False(t, h.g.stepReplays())
	assert.Equal(t, events.ViewAllDrawings, recv(t, alice).Event)

	var indexes []int
	for range 20 {
		if !h.g.stepReplays() {
			break
		}
		msg := recv(t, alice)
		if msg.Event == events.ViewAllDrawingsFinished {
			break
		}
		indexes = append(indexes, *msg.Index)
	}
	assert.Equal(t, []int{0, 1, 2}, indexes)
	assert.Empty(t, h.g.replays)
}

func TestReplay_TriggerHeldWhenBufferFull(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 1)
	seedRoom(t, h, 2)
	alice.Send <- []byte(`{"event":"drawing-saved"}`)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	require.Len(t, h.g.replays, 1)
	require.NotNil(t, h.g.replays[0].held)
	assert.False(t, h.g.stepReplays())

	assert.Equal(t, events.DrawingSaved, recv(t, alice).Event)
	got := collectReplay(t, h, alice)
	require.Len(t, got, 4)
	assert.Equal(t, events.ViewAllDrawings, got[0].Event)
	assert.Equal(t, 0, *got[1].Index)
	assert.Equal(t, 1, *got[2].Index)
	assert.Equal(t, events.ViewAllDrawingsFinished, got[3].Event)
}

func TestReplay_HeldFrameIsReusedVerbatim(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 1)
	seedRoom(t, h, 1)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	require.False(t, h.g.stepReplays())
	job := h.g.replays[0]
	held := job.held
	require.NotEmpty(t, held)

	require.False(t, h.g.stepReplays())
	assert.Same(t, &held[0], &job.held[0], "retry should not re-encode the frame")

	recv(t, alice)
	require.True(t, h.g.stepReplays())
	assert.Equal(t, string(held), string(<-alice.Send))
	assert.Nil(t, job.held)
}

func TestViewAllDrawings_RepeatRestartsReplay(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 32)
	seedRoom(t, h, 3)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	require.True(t, h.g.stepReplays())
	assert.Equal(t, events.ViewAllDrawings, recv(t, alice).Event)
	assert.Equal(t, 0, *recv(t, alice).Index)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	require.Len(t, h.g.replays, 1)
	assert.Equal(t, events.ViewAllDrawings, recv(t, alice).Event)

	got := collectReplay(t, h, alice)
	var indexes []int
	finished := 0
	for _, msg := range got {
		switch msg.Event {
		case events.DrawingData:
			indexes = append(indexes, *msg.Index)
		case events.ViewAllDrawingsFinished:
			finished++
		}
	}
	assert.Equal(t, []int{0, 1, 2}, indexes)
	assert.Equal(t, 1, finished)
	for range 5 {
		h.g.stepReplays()
	}
	requireEmpty(t, alice)
}

func TestReplay_DroppedOnDisconnect(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 8)
	h.connect("bob", 8)
	seedRoom(t, h, 3)
	require.NoError(t, h.store.Get("ROOM").AddUser("bob", "bob"))

	h.do("bob", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	require.Len(t, h.g.replays, 1)
	h.g.stepReplays()

	h.do("bob", events.ClientMessage{Event: events.Disconnect})

	assert.Empty(t, h.g.replays)
	assert.False(t, h.g.stepReplays())
	assert.NotNil(t, h.store.Get("ROOM"))
	recv(t, alice)
	requireEmpty(t, alice)
}

func TestReplay_ClientGoneAbandonsJob(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 8)
	seedRoom(t, h, 2)

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	h.hub.Unregister("alice")

	assert.True(t, h.g.stepReplays())
	assert.Empty(t, h.g.replays)
	assert.True(t, alice.Closed())
}

func TestReplay_RoundRobin(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("alice", 16)
	bob := h.connect("bob", 16)
	seedRoom(t, h, 2)
	require.NoError(t, h.store.Get("ROOM").AddUser("bob", "bob"))

	h.do("alice", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	h.do("bob", events.ClientMessage{Event: events.ViewAllDrawings, RoomID: "ROOM"})
	for range 2 {
		recv(t, alice)
		recv(t, bob)
	}

	// Two steps serve both requesters once each
	require.True(t, h.g.stepReplays())
	require.True(t, h.g.stepReplays())
	assert.Equal(t, 0, *recv(t, alice).Index)
	assert.Equal(t, 0, *recv(t, bob).Index)
}
