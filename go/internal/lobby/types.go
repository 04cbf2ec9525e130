package lobby

import (
	"time"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
)

const (
	DefaultTimeLimit  = 30
	MinTimeLimit      = 5
	MaxTimeLimit      = 120
	DefaultMaxPlayers = 10
	MaxMaxPlayers     = 50
)

// CreateGameRequest creates a pending game hosted by the caller.
type CreateGameRequest struct {
	QuestionSetID string `json:"question_set_id"`
	TimeLimit     int    `json:"time_limit,omitempty"`
	MaxPlayers    int    `json:"max_players,omitempty"`
}

type CreateGameResponse struct {
	Game GameSummary `json:"game"`
}

// JoinGameRequest finds the game by Code or GameID. Callers without a
// session join as guests and must supply DisplayName.
type JoinGameRequest struct {
	Code        string `json:"code,omitempty"`
	GameID      string `json:"game_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type JoinGameResponse struct {
	Game        GameSummary        `json:"game"`
	Participant models.Participant `json:"participant"`
	// GuestToken is set for guests; it authenticates the websocket.
	GuestToken string `json:"guest_token,omitempty"`
}

type LeaveGameRequest struct {
	GameID string `json:"game_id"`
}

type LeaveGameResponse struct{}

type GetGameRequest struct {
	GameID string `json:"game_id"`
}

type GetGameResponse struct {
	Game         GameSummary          `json:"game"`
	Participants []models.Participant `json:"participants"`
}

// GameSummary is a game without its questions, so answers never reach the
// lobby.
type GameSummary struct {
	ID            uuid.UUID         `json:"id"`
	QuestionSetID uuid.UUID         `json:"question_set_id"`
	HostUserID    uuid.UUID         `json:"host_user_id"`
	Status        models.GameStatus `json:"status"`
	TimeLimit     int               `json:"time_limit"`
	Code          string            `json:"code,omitempty"`
	MaxPlayers    int               `json:"max_players"`
	QuestionCount int               `json:"question_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

func summarize(g *models.Game) GameSummary {
	s := GameSummary{
		ID:            g.ID,
		QuestionSetID: g.QuestionSetID,
		HostUserID:    g.HostUserID,
		Status:        g.Status,
		TimeLimit:     g.TimeLimit,
		MaxPlayers:    g.MaxPlayers,
		QuestionCount: len(g.Questions),
		CreatedAt:     g.CreatedAt,
	}
	if g.Code != nil {
		s.Code = *g.Code
	}
	return s
}
