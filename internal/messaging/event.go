package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

type EventKind string

const (
	EventCreated      EventKind = "created"
	EventPlayerJoined EventKind = "player_joined"
	EventPlayerLeft   EventKind = "player_left"
	EventTerminated   EventKind = "terminated"
	EventReport       EventKind = "report"
)

// Event describes a change in a session's lifecycle or roster.
type Event struct {
	Id        string           `msgpack:"id"`
	Kind      EventKind        `msgpack:"kind"`
	SessionId string           `msgpack:"session_id"`
	PlayerId  uint64           `msgpack:"player_id,omitempty"`
	At        time.Time        `msgpack:"at"`
	Players   int              `msgpack:"players"`
	Metrics   map[string]int64 `msgpack:"metrics,omitempty"`
}

func NewEvent(kind EventKind, sessionId string) Event {
	return Event{
		Id:        uuid.NewString(),
		Kind:      kind,
		SessionId: sessionId,
		At:        time.Now().UTC(),
	}
}

// Subject is the NATS subject the event is published on.
func (e Event) Subject() string {
	return fmt.Sprintf("arena.session.%s.%s", e.SessionId, e.Kind)
}

func (e Event) Marshal() ([]byte, error) {
	return msgpack.Marshal(e)
}

func UnmarshalEvent(b []byte) (Event, error) {
	var e Event
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return e, nil
}
