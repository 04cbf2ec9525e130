package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PresenceEventType is the kind of presence change delivered to a channel.
type PresenceEventType string

const (
	PresenceSync  PresenceEventType = "sync"
	PresenceJoin  PresenceEventType = "join"
	PresenceLeave PresenceEventType = "leave"
)

// ChangeType is the kind of row change carried by a change notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Tables that publish change notifications.
const (
	TableGames        = "games"
	TableParticipants = "participants"
)

// Presence is the payload a member announces with Track.
type Presence struct {
	Key      string    `json:"key"`
	UserID   string    `json:"user_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	OnlineAt time.Time `json:"online_at"`
}

// PresenceEvent reports a presence change. State is the full set of connected
// members after the change, keyed by presence key.
type PresenceEvent struct {
	Type     PresenceEventType   `json:"type"`
	Key      string              `json:"key,omitempty"`
	Presence Presence            `json:"presence,omitempty"`
	State    map[string]Presence `json:"state"`
}

// ChangeEvent is a row change on a table filtered by game id. New is set for
// inserts and updates, Old for updates and deletes.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Type   ChangeType      `json:"type"`
	GameID uuid.UUID       `json:"game_id"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// BroadcastEvent is an application message sent to every other member.
type BroadcastEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is one subscription to the realtime topic of a game. Handlers must
// be registered before Subscribe. Handlers may be invoked from any goroutine.
type Channel interface {
	OnPresence(handler func(PresenceEvent))
	OnChange(table string, handler func(ChangeEvent))
	OnBroadcast(event string, handler func(BroadcastEvent))

	Subscribe(ctx context.Context) error
	Track(ctx context.Context, presence Presence) error
	// Send delivers a broadcast to every other member currently subscribed.
	// There is no replay for members that subscribe later.
	Send(ctx context.Context, event string, payload any) error
	// Unsubscribe leaves the topic. It is safe to call more than once.
	Unsubscribe() error
}

// ChannelFactory opens channels scoped to a game.
type ChannelFactory interface {
	Channel(gameID uuid.UUID) Channel
}

// CopyState returns a copy of a presence state map.
func CopyState(state map[string]Presence) map[string]Presence {
	out := make(map[string]Presence, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
