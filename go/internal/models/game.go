package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the lifecycle status of a game.
type GameStatus string

const (
	GameStatusPending    GameStatus = "pending"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
)

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusPending, GameStatusInProgress, GameStatusCompleted:
		return true
	}
	return false
}

// Game represents one trivia session.
type Game struct {
	ID            uuid.UUID  `json:"id"`
	QuestionSetID uuid.UUID  `json:"question_set_id"`
	HostUserID    uuid.UUID  `json:"host_user_id"`
	Status        GameStatus `json:"status"`
	TimeLimit     int        `json:"time_limit"` // seconds per question
	Code          *string    `json:"code,omitempty"`
	MaxPlayers    int        `json:"max_players"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`

	// Questions is populated on reads that include the question set.
	Questions []Question `json:"questions,omitempty"`
}

// IsHost reports whether userID hosts the game.
func (g *Game) IsHost(userID uuid.UUID) bool {
	return g != nil && userID != uuid.Nil && g.HostUserID == userID
}

// GameStatusUpdate is a partial update of a game's status and timestamps.
type GameStatusUpdate struct {
	Status    GameStatus `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ClearCode bool       `json:"clear_code,omitempty"`
}
