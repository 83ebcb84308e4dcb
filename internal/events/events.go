// Package events defines the WebSocket wire protocol and the bus that carries
// decoded client events to the gateway.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> server
const (
	CreateRoom      = "create-room"
	StartGame       = "start-game"
	JoinRoom        = "join-room"
	LeaveRoom       = "leave-room"
	SaveDrawing     = "save-drawing"
	ViewAllDrawings = "view-all-drawings"
	Disconnect      = "disconnect"
)

// Server -> client. view-all-drawings is also sent back to the room.
const (
	RoomCreated             = "room-created"
	GameStarted             = "game-started"
	RoomJoined              = "room-joined"
	UserJoined              = "user-joined"
	RoomError               = "room-error"
	RoomLeft                = "room-left"
	DrawingSaved            = "drawing-saved"
	DrawingError            = "drawing-error"
	DrawingData             = "drawing-data"
	ViewAllDrawingsFinished = "view-all-drawings-finished"
)

var ErrUnknownEvent = errors.New("unknown event")

// ClientMessage is the JSON structure received from clients.
type ClientMessage struct {
	Event          string `json:"event"`
	RoomID         string `json:"roomId,omitempty"`
	Username       string `json:"username,omitempty"`
	DrawingDataURL string `json:"drawingDataUrl,omitempty"`
}

// ServerMessage is the JSON structure sent to clients.
type ServerMessage struct {
	Event     string `json:"event"`
	RoomID    string `json:"roomId,omitempty"`
	Message   string `json:"message,omitempty"`
	Username  string `json:"username,omitempty"`
	Color     string `json:"color,omitempty"`
	Index     *int   `json:"index,omitempty"`
	ImageData string `json:"imageData,omitempty"`
}

// Decode parses one client frame. Disconnect is synthesized server-side and is
// refused when a client sends it.
func Decode(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decoding client message: %w", err)
	}
	switch msg.Event {
	case CreateRoom, StartGame, JoinRoom, LeaveRoom, SaveDrawing, ViewAllDrawings:
		return msg, nil
	}
	return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
}

// Encode renders msg as one server frame.
func Encode(msg ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", msg.Event, err)
	}
	return data, nil
}

// Inbound is a client message tagged with the connection it arrived on.
type Inbound struct {
	ConnID  string
	Message ClientMessage
}

type Bus struct {
	Inbound chan Inbound
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{
		Inbound: make(chan Inbound, size),
	}
}

// DrawingDataMessage builds the per-artifact replay message.
func DrawingDataMessage(index int, imageData string) ServerMessage {
	return ServerMessage{Event: DrawingData, Index: &index, ImageData: imageData}
}
