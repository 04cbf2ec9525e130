package natschannel

import (
	"time"

	"github.com/WillDent/guess-that-tune/go/internal/realtime"
)

type presenceOp string

const (
	opJoin      presenceOp = "join"
	opHeartbeat presenceOp = "heartbeat"
	opLeave     presenceOp = "leave"
	opQuery     presenceOp = "query"
)

// presenceMsg is the wire format on the presence subject.
type presenceMsg struct {
	Op       presenceOp        `json:"op"`
	Origin   string            `json:"origin"`
	Presence realtime.Presence `json:"presence,omitempty"`
}

type member struct {
	presence realtime.Presence
	origin   string
	lastSeen time.Time
}

// presenceTable is the local view of who is connected to a game.
type presenceTable struct {
	members map[string]member
	ttl     time.Duration
}

func newPresenceTable(ttl time.Duration) *presenceTable {
	return &presenceTable{members: make(map[string]member), ttl: ttl}
}

func (t *presenceTable) state() map[string]realtime.Presence {
	out := make(map[string]realtime.Presence, len(t.members))
	for k, m := range t.members {
		out[k] = m.presence
	}
	return out
}

// apply folds one presence message into the table and returns the events to
// deliver.
func (t *presenceTable) apply(msg presenceMsg, now time.Time) []realtime.PresenceEvent {
	key := msg.Presence.Key
	switch msg.Op {
	case opJoin, opHeartbeat:
		if key == "" {
			return nil
		}
		_, known := t.members[key]
		t.members[key] = member{presence: msg.Presence, origin: msg.Origin, lastSeen: now}
		if known {
			return nil
		}
		state := t.state()
		return []realtime.PresenceEvent{
			{Type: realtime.PresenceJoin, Key: key, Presence: msg.Presence, State: state},
			{Type: realtime.PresenceSync, State: state},
		}
	case opLeave:
		m, ok := t.members[key]
		if !ok || m.origin != msg.Origin {
			return nil
		}
		delete(t.members, key)
		state := t.state()
		return []realtime.PresenceEvent{
			{Type: realtime.PresenceLeave, Key: key, Presence: m.presence, State: state},
			{Type: realtime.PresenceSync, State: state},
		}
	}
	return nil
}

// expire drops members that have not been heard from within the ttl.
func (t *presenceTable) expire(now time.Time) []realtime.PresenceEvent {
	var events []realtime.PresenceEvent
	for key, m := range t.members {
		if now.Sub(m.lastSeen) <= t.ttl {
			continue
		}
		delete(t.members, key)
		events = append(events, realtime.PresenceEvent{
			Type: realtime.PresenceLeave, Key: key, Presence: m.presence,
		})
	}
	if len(events) == 0 {
		return nil
	}
	state := t.state()
	for i := range events {
		events[i].State = state
	}
	return append(events, realtime.PresenceEvent{Type: realtime.PresenceSync, State: state})
}
