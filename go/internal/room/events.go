package room

import (
	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
)

// EventType names an input to the room reducer.
type EventType string

const (
	EventTypeLoaded               EventType = "loaded"
	EventTypeParticipantsReloaded EventType = "participants_reloaded"
	EventTypePresenceSynced       EventType = "presence_synced"
	EventTypePresenceJoined       EventType = "presence_joined"
	EventTypePresenceLeft         EventType = "presence_left"
	EventTypeParticipantUpdated   EventType = "participant_updated"
	EventTypeParticipantDeleted   EventType = "participant_deleted"
	EventTypeGameUpdated          EventType = "game_updated"
	EventTypePlayerReady          EventType = "player_ready"
	EventTypeQuestionChanged      EventType = "question_changed"
	EventTypeTimeSynced           EventType = "time_sync"
	EventTypeGameEnded            EventType = "game_ended"
	EventTypeTimerTicked          EventType = "timer_ticked"
	EventTypeStateSynced          EventType = "state_sync"
)

// Broadcast event names on the realtime channel.
const (
	BroadcastPlayerReady     = "player_ready"
	BroadcastQuestionChanged = "question_changed"
	BroadcastTimeSync        = "time_sync"
	BroadcastGameEnded       = "game_ended"
	BroadcastStateRequest    = "state_request"
	BroadcastStateSync       = "state_sync"
)

// Event is an input to Reduce.
type Event interface {
	Type() EventType
}

type Loaded struct {
	Game         models.Game
	Participants []models.Participant
}

type ParticipantsReloaded struct {
	Participants []models.Participant
}

type PresenceSynced struct {
	State map[string]realtime.Presence
}

type PresenceJoined struct {
	Key      string
	Presence realtime.Presence
}

type PresenceLeft struct {
	Key string
}

type ParticipantUpdated struct {
	Participant models.Participant
}

type ParticipantDeleted struct {
	ID uuid.UUID
}

type GameUpdated struct {
	Game models.Game
}

type PlayerReady struct {
	Key   string
	Ready bool
}

type QuestionChanged struct {
	Index int
}

type TimeSynced struct {
	TimeRemaining int
}

type GameEnded struct{}

type TimerTicked struct{}

// StateSynced carries a peer's question position to a viewer that joined a
// running game.
type StateSynced struct {
	Index         int
	TimeRemaining int
}

func (Loaded) Type() EventType               { return EventTypeLoaded }
func (ParticipantsReloaded) Type() EventType { return EventTypeParticipantsReloaded }
func (PresenceSynced) Type() EventType       { return EventTypePresenceSynced }
func (PresenceJoined) Type() EventType       { return EventTypePresenceJoined }
func (PresenceLeft) Type() EventType         { return EventTypePresenceLeft }
func (ParticipantUpdated) Type() EventType   { return EventTypeParticipantUpdated }
func (ParticipantDeleted) Type() EventType   { return EventTypeParticipantDeleted }
func (GameUpdated) Type() EventType          { return EventTypeGameUpdated }
func (PlayerReady) Type() EventType          { return EventTypePlayerReady }
func (QuestionChanged) Type() EventType      { return EventTypeQuestionChanged }
func (TimeSynced) Type() EventType           { return EventTypeTimeSynced }
func (GameEnded) Type() EventType            { return EventTypeGameEnded }
func (TimerTicked) Type() EventType          { return EventTypeTimerTicked }
func (StateSynced) Type() EventType          { return EventTypeStateSynced }

// Wire payloads for broadcasts.

type PlayerReadyPayload struct {
	Key   string `json:"key"`
	Ready bool   `json:"ready"`
}

type QuestionChangedPayload struct {
	Index int `json:"index"`
}

type TimeSyncPayload struct {
	TimeRemaining int `json:"time_remaining"`
}

type GameEndedPayload struct{}

// StateRequestPayload asks the room for its position. Key is the presence
// key of the asking viewer.
type StateRequestPayload struct {
	Key string `json:"key"`
}

// StateSyncPayload answers a StateRequestPayload addressed to Key.
type StateSyncPayload struct {
	Key           string `json:"key"`
	Index         int    `json:"index"`
	TimeRemaining int    `json:"time_remaining"`
}

// NoticeKind classifies a transient message for the presentation layer.
type NoticeKind string

const (
	NoticeInfo     NoticeKind = "info"
	NoticeError    NoticeKind = "error"
	NoticeHostLeft NoticeKind = "host_left"
)

// Notice is a toast-style message emitted alongside state changes.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Effects are the side effects requested by Reduce.
type Effects struct {
	StartTimer bool
	StopTimer  bool
	Notices    []Notice
}
