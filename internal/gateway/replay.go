package gateway

import (
	"errors"

	"github.com/sirupsen/logrus"

	"telestrations/internal/drawings"
	"telestrations/internal/events"
	"telestrations/internal/wshub"
)

// replayJob streams one room snapshot to one requester.
type replayJob struct {
	connID string
	roomID string
	replay *drawings.Replay

	// held is an encoded frame that met a full buffer and must go out before
	// the replay advances.
	held []byte
	last bool
}

// startReplay replaces any replay connID already has running. The trigger
// is queued ahead of the first drawing; when the requester's buffer is full
// it is held by the job instead of being lost.
func (g *Gateway) startReplay(connID, roomID string, replay *drawings.Replay, notify bool) *replayJob {
	g.dropReplays(connID)
	job := &replayJob{connID: connID, roomID: roomID, replay: replay}
	if notify {
		data, err := events.Encode(events.ServerMessage{Event: events.ViewAllDrawings, RoomID: roomID})
		if err == nil && errors.Is(g.hub.SendBytes(connID, data), wshub.ErrBufferFull) {
			job.held = data
		}
	}
	g.replays = append(g.replays, job)
	return job
}

// stepReplays sends one message for the next replay that can make progress,
// round-robin. It reports false when every replay is stalled.
func (g *Gateway) stepReplays() bool {
	for range len(g.replays) {
		if g.next >= len(g.replays) {
			g.next = 0
		}
		job := g.replays[g.next]
		progressed, done := g.step(job)
		if done {
			g.replays = append(g.replays[:g.next], g.replays[g.next+1:]...)
		} else {
			g.next++
		}
		if progressed {
			return true
		}
	}
	return false
}

func (g *Gateway) step(job *replayJob) (progressed, done bool) {
	log := g.log.WithFields(logrus.Fields{"conn_id": job.connID, "room_id": job.roomID})

	data := job.held
	if data == nil {
		var msg events.ServerMessage
		if d, ok := job.replay.Next(); ok {
			msg = events.DrawingDataMessage(d.Index, d.DataURL)
		} else {
			msg = events.ServerMessage{Event: events.ViewAllDrawingsFinished, RoomID: job.roomID}
			job.last = true
		}
		var err error
		if data, err = events.Encode(msg); err != nil {
			log.WithError(err).Error("Replay abandoned")
			return true, true
		}
	}

	err := g.hub.SendBytes(job.connID, data)
	switch {
	case errors.Is(err, wshub.ErrBufferFull):
		job.held = data
		return false, false
	case err != nil:
		log.WithField("remaining", job.replay.Remaining()).WithError(err).Debug("Replay abandoned")
		return true, true
	}

	job.held = nil
	if job.last {
		g.metrics.ReplaysCompleted.Inc()
		return true, true
	}
	return true, false
}

// dropReplays discards pending replays addressed to connID.
func (g *Gateway) dropReplays(connID string) {
	kept := g.replays[:0]
	for _, job := range g.replays {
		if job.connID != connID {
			kept = append(kept, job)
		}
	}
	clear(g.replays[len(kept):])
	g.replays = kept
	if g.next >= len(g.replays) {
		g.next = 0
	}
}
