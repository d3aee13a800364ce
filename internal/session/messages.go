package session

import (
	"encoding/json"

	"github.com/cortexuvula/roomsync/internal/room"
)

// Outbound event names.
const (
	EventConnected  = "Connected"
	EventRoomUpdate = "RoomUpdate"
	EventKicked     = "Kicked"
)

type ConnectedMessage struct {
	Event      string `json:"event"`
	UserID     string `json:"userId"`
	RoomExists bool   `json:"roomExists"`
}

type RoomUpdateMessage struct {
	Event    string     `json:"event"`
	RoomData *room.Room `json:"roomData"`
}

type KickedMessage struct {
	Event string `json:"event"`
}

func encodeConnected(userID string, exists bool) ([]byte, error) {
	return json.Marshal(ConnectedMessage{Event: EventConnected, UserID: userID, RoomExists: exists})
}

func encodeRoomUpdate(doc *room.Room) ([]byte, error) {
	return json.Marshal(RoomUpdateMessage{Event: EventRoomUpdate, RoomData: doc})
}

var kickedPayload = []byte(`{"event":"Kicked"}`)
