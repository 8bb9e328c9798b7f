package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound event kinds.
const (
	EventRoomSnapshot = "room_snapshot"
	EventPollCreated  = "poll_created"
	EventPollOptions  = "poll_options"
	EventPollVotes    = "poll_votes"
	EventPollClosed   = "poll_closed"
	EventElevate      = TypeElevate
	EventRecede       = TypeRecede
	EventInstant      = TypeInstant
	EventRaise        = TypeRaise
	EventLower        = TypeLower
)

// WSMessage is the outbound WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OptionView is one poll option with its tally.
type OptionView struct {
	Title string `json:"title"`
	Votes int    `json:"votes"`
}

// PollView is the wire form of a poll.
type PollView struct {
	Title     string            `json:"title"`
	Room      string            `json:"room"`
	OwnerID   uint64            `json:"owner_id"`
	OwnerName string            `json:"owner_name"`
	Options   []OptionView      `json:"options"`
	Votes     map[string]string `json:"votes"` // voter id -> option title
	Closed    bool              `json:"closed"`
}

// PollEvent carries a poll after a lifecycle change.
type PollEvent struct {
	Poll PollView `json:"poll"`
}

// LevelEvent carries an elevate or recede adjustment.
type LevelEvent struct {
	OwnerID uint64 `json:"owner_id"`
	Value   uint64 `json:"value"`
	Level   uint64 `json:"level"`
}

// SignalEvent carries an instant, raise or lower signal.
type SignalEvent struct {
	OwnerID   uint64          `json:"owner_id"`
	OwnerName string          `json:"owner_name"`
	Object    json.RawMessage `json:"object"`
}

// RoomSnapshot is sent to a member right after it joins.
type RoomSnapshot struct {
	Room      string     `json:"room"`
	SessionID uint64     `json:"session_id"`
	Polls     []PollView `json:"polls"`
}

// Encode marshals an event into a ready-to-send text frame.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(WSMessage{Event: event, Data: data})
}
