package gateway

import (
	"errors"

	"github.com/sirupsen/logrus"

	"telestrations/internal/events"
	"telestrations/internal/rooms"
	"telestrations/internal/wshub"
)

const (
	msgRoomNotFound   = "Room not found"
	msgCreateFailed   = "Could not create room"
	msgDrawingSaved   = "Drawing saved"
	msgDrawingFailure = "Error saving drawing"
)

func (g *Gateway) handle(in events.Inbound) {
	g.metrics.Events.WithLabelValues(in.Message.Event).Inc()
	msg := in.Message
	switch msg.Event {
	case events.CreateRoom:
		g.handleCreateRoom(in.ConnID, msg)
	case events.StartGame:
		g.handleStartGame(in.ConnID, msg)
	case events.JoinRoom:
		g.handleJoinRoom(in.ConnID, msg)
	case events.LeaveRoom:
		g.handleLeaveRoom(in.ConnID, msg)
	case events.SaveDrawing:
		g.handleSaveDrawing(in.ConnID, msg)
	case events.ViewAllDrawings:
		g.handleViewAllDrawings(in.ConnID, msg)
	case events.Disconnect:
		g.handleDisconnect(in.ConnID)
	default:
		g.log.WithFields(logrus.Fields{"conn_id": in.ConnID, "event": msg.Event}).Warn("Unknown event")
	}
}

func (g *Gateway) handleCreateRoom(connID string, msg events.ClientMessage) {
	g.leaveCurrent(connID, "")

	room, err := g.rooms.CreateWithCode(connID, msg.Username)
	if err != nil {
		g.log.WithError(err).WithField("conn_id", connID).Error("Failed to create room")
		g.send(connID, events.ServerMessage{Event: events.RoomError, Message: msgCreateFailed})
		return
	}
	g.conns.Bind(connID, room.Code)
	g.metrics.RoomsCreated.Inc()
	g.metrics.RoomsActive.Set(float64(g.rooms.Len()))
	g.journal.RoomCreated(room.Code, connID)

	g.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": room.Code}).Info("Room created")
	g.send(connID, events.ServerMessage{Event: events.RoomCreated, RoomID: room.Code})
}

func (g *Gateway) handleStartGame(connID string, msg events.ClientMessage) {
	code := rooms.NormalizeCode(msg.RoomID)
	log := g.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": code})
	room := g.rooms.Get(code)
	if room == nil {
		log.Warn("start-game for unknown room")
		return
	}
	g.hub.Broadcast(room.MemberIDs(), connID, events.ServerMessage{Event: events.GameStarted, RoomID: code})
	log.Info("Game started")
}

func (g *Gateway) handleJoinRoom(connID string, msg events.ClientMessage) {
	code := rooms.NormalizeCode(msg.RoomID)
	log := g.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": code})
	room := g.rooms.Get(code)
	if room == nil {
		log.Info("join-room for unknown room")
		g.send(connID, events.ServerMessage{Event: events.RoomError, Message: msgRoomNotFound})
		return
	}

	g.leaveCurrent(connID, code)

	alreadyMember := room.HasUser(connID)
	if err := room.AddUser(connID, msg.Username); err != nil {
		log.WithError(err).Warn("Join failed")
		g.send(connID, events.ServerMessage{Event: events.RoomError, Message: msgRoomNotFound})
		return
	}
	g.conns.Bind(connID, code)

	g.send(connID, events.ServerMessage{Event: events.RoomJoined, RoomID: code})
	if alreadyMember {
		return
	}
	p, _ := room.Member(connID)
	g.hub.Broadcast(room.MemberIDs(), "", events.ServerMessage{
		Event:    events.UserJoined,
		RoomID:   code,
		Username: p.Name,
		Color:    p.Color,
	})
	log.WithField("username", p.Name).Info("User joined room")
}

func (g *Gateway) handleLeaveRoom(connID string, msg events.ClientMessage) {
	code := rooms.NormalizeCode(msg.RoomID)
	log := g.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": code})
	res, err := g.rooms.Leave(code, connID)
	if err != nil {
		log.WithError(err).Warn("leave-room failed")
		return
	}
	if current, ok := g.conns.Lookup(connID); ok && current == code {
		g.conns.Forget(connID)
	}
	g.afterLeave(res)

	log.WithField("destroyed", res.Destroyed).Info("User left room")
	g.send(connID, events.ServerMessage{Event: events.RoomLeft, RoomID: code})
}

func (g *Gateway) handleSaveDrawing(connID string, msg events.ClientMessage) {
	code := rooms.NormalizeCode(msg.RoomID)
	log := g.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": code})
	room := g.rooms.Get(code)
	if room == nil {
		g.metrics.DrawingsRejected.Inc()
		log.Warn("save-drawing for unknown room")
		g.send(connID, events.ServerMessage{Event: events.DrawingError, Message: msgDrawingFailure})
		return
	}

	d, err := room.SaveDrawing(connID, msg.DrawingDataURL)
	if err != nil {
		g.metrics.DrawingsRejected.Inc()
		log.WithError(err).Warn("Drawing rejected")
		g.send(connID, events.ServerMessage{Event: events.DrawingError, Message: msgDrawingFailure})
		return
	}
	g.metrics.DrawingsSaved.Inc()
	g.journal.DrawingSaved(code, d)

	log.WithFields(logrus.Fields{"index": d.Index, "bytes": d.Size}).Debug("Drawing saved")
	g.send(connID, events.ServerMessage{Event: events.DrawingSaved, Message: msgDrawingSaved})
}

func (g *Gateway) handleViewAllDrawings(connID string, msg events.ClientMessage) {
	code := rooms.NormalizeCode(msg.RoomID)
	log := g.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": code})
	room := g.rooms.Get(code)
	if room == nil {
		log.Warn("view-all-drawings for unknown room")
		return
	}

	job := g.startReplay(connID, code, room.Replay(), room.HasUser(connID))
	g.hub.Broadcast(room.MemberIDs(), connID, events.ServerMessage{Event: events.ViewAllDrawings, RoomID: code})
	log.WithField("drawings", job.replay.Len()).Info("Replay queued")
}

func (g *Gateway) handleDisconnect(connID string) {
	g.dropReplays(connID)
	g.leaveOnDisconnect(connID)
	g.conns.Forget(connID)
	g.hub.Unregister(connID)
	g.metrics.Connections.Set(float64(g.hub.Count()))
	g.log.WithField("conn_id", connID).Info("Client disconnected")
}

// leaveOnDisconnect leaves the room the registry binds connID to. The full
// directory scan only runs when the binding is missing or stale.
func (g *Gateway) leaveOnDisconnect(connID string) {
	if code, ok := g.conns.Lookup(connID); ok {
		if res, err := g.rooms.Leave(code, connID); err == nil {
			g.afterLeave(res)
			if res.WasMember {
				return
			}
		}
	}
	for _, res := range g.rooms.RemoveUserFromAllRooms(connID) {
		g.afterLeave(res)
	}
}

// leaveCurrent removes connID from the room it is bound to unless that room
// is keep.
func (g *Gateway) leaveCurrent(connID, keep string) {
	code, ok := g.conns.Lookup(connID)
	if !ok || code == keep {
		return
	}
	g.conns.Forget(connID)
	res, err := g.rooms.Leave(code, connID)
	if err != nil {
		return
	}
	g.afterLeave(res)
}

func (g *Gateway) afterLeave(res rooms.LeaveResult) {
	if res.Destroyed {
		g.roomDestroyed(res.RoomCode, res.Reason)
	}
}

// roomDestroyed releases the registry entries still pointing at code.
func (g *Gateway) roomDestroyed(code string, reason rooms.Reason) {
	orphaned := g.conns.ForgetRoom(code)
	g.metrics.RoomsDestroyed.WithLabelValues(string(reason)).Inc()
	g.metrics.RoomsActive.Set(float64(g.rooms.Len()))
	g.journal.RoomClosed(code, string(reason))
	g.log.WithFields(logrus.Fields{
		"room_id":  code,
		"reason":   reason,
		"orphaned": len(orphaned),
	}).Info("Room destroyed")
}

// send delivers a reply to one connection. A full buffer or a departed client
// only costs that client the message.
func (g *Gateway) send(connID string, msg events.ServerMessage) {
	if err := g.hub.Send(connID, msg); err != nil {
		level := logrus.WarnLevel
		if errors.Is(err, wshub.ErrClientGone) {
			level = logrus.DebugLevel
		}
		g.log.WithFields(logrus.Fields{"conn_id": connID, "event": msg.Event}).WithError(err).Log(level, "Send failed")
	}
}
