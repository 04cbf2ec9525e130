package room

import (
	"sort"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
)

// GameState is the presentation phase derived from the game status.
type GameState string

const (
	GameStateLobby    GameState = "lobby"
	GameStatePlaying  GameState = "playing"
	GameStateFinished GameState = "finished"
)

// GameStateFor maps a stored status onto a room phase.
func GameStateFor(status models.GameStatus) GameState {
	switch status {
	case models.GameStatusInProgress:
		return GameStatePlaying
	case models.GameStatusCompleted:
		return GameStateFinished
	default:
		return GameStateLobby
	}
}

// Player is a participant decorated with live room flags.
type Player struct {
	models.Participant
	IsOnline bool `json:"is_online"`
	IsHost   bool `json:"is_host"`
	IsReady  bool `json:"is_ready"`
}

// RoomState is the coordinator-owned view of one game.
type RoomState struct {
	Game            *models.Game `json:"game"`
	Players         []Player     `json:"players"`
	CurrentQuestion int          `json:"current_question"`
	TimeRemaining   int          `json:"time_remaining"`
	GameState       GameState    `json:"game_state"`
	IsHost          bool         `json:"is_host"`
	ViewerID        uuid.UUID    `json:"viewer_id"`

	online map[string]realtime.Presence
	ready  map[string]bool
}

// NewRoomState returns an empty, unloaded state for a viewer.
func NewRoomState(viewerID uuid.UUID) RoomState {
	return RoomState{
		GameState: GameStateLobby,
		ViewerID:  viewerID,
		online:    make(map[string]realtime.Presence),
		ready:     make(map[string]bool),
	}
}

// Loaded reports whether the initial fetch has been applied.
func (s RoomState) Loaded() bool {
	return s.Game != nil
}

// Question returns the current question, if any.
func (s RoomState) Question() (models.Question, bool) {
	if s.Game == nil || s.CurrentQuestion < 0 || s.CurrentQuestion >= len(s.Game.Questions) {
		return models.Question{}, false
	}
	return s.Game.Questions[s.CurrentQuestion], true
}

// IsLastQuestion reports whether the current question is the final one.
func (s RoomState) IsLastQuestion() bool {
	return s.Game == nil || s.CurrentQuestion >= len(s.Game.Questions)-1
}

// Viewer returns the viewer's own player entry. Registered viewers match on
// user id, guests on participant id.
func (s RoomState) Viewer() (Player, bool) {
	for _, p := range s.Players {
		if p.BelongsTo(s.ViewerID) || (p.UserID == nil && p.ID == s.ViewerID) {
			return p, true
		}
	}
	return Player{}, false
}

// ViewerKey is the presence key the viewer tracks under.
func (s RoomState) ViewerKey() string {
	if p, ok := s.Viewer(); ok {
		return p.PresenceKey()
	}
	return s.ViewerID.String()
}

// HostKey is the presence key of the game host.
func (s RoomState) HostKey() string {
	if s.Game == nil {
		return ""
	}
	return s.Game.HostUserID.String()
}

// Online returns a copy of the connected presence keys.
func (s RoomState) Online() map[string]realtime.Presence {
	return realtime.CopyState(s.online)
}

// Leaderboard returns players ordered by score, ties broken by join time.
func (s RoomState) Leaderboard() []Player {
	out := append([]Player(nil), s.Players...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// clone copies everything the reducer may mutate.
func (s RoomState) clone() RoomState {
	out := s
	out.Players = append([]Player(nil), s.Players...)
	out.online = realtime.CopyState(s.online)
	out.ready = make(map[string]bool, len(s.ready))
	for k, v := range s.ready {
		out.ready[k] = v
	}
	if s.Game != nil {
		g := *s.Game
		out.Game = &g
	}
	return out
}

// decorate rebuilds the live flags of every player.
func (s *RoomState) decorate() {
	for i := range s.Players {
		p := &s.Players[i]
		key := p.PresenceKey()
		_, p.IsOnline = s.online[key]
		p.IsReady = s.ready[key]
		p.IsHost = p.UserID != nil && s.Game != nil && *p.UserID == s.Game.HostUserID
	}
}

func (s RoomState) playerName(key string) string {
	for _, p := range s.Players {
		if p.PresenceKey() == key {
			return p.DisplayName
		}
	}
	if pr, ok := s.online[key]; ok && pr.Name != "" {
		return pr.Name
	}
	return "A player"
}
