package models

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is one attempted question, embedded in a participant row.
type AnswerRecord struct {
	QuestionIndex    int    `json:"question_index"`
	SelectedOptionID string `json:"selected_option_id"`
	IsCorrect        bool   `json:"is_correct"`
	TimeTaken        int    `json:"time_taken"` // seconds
}

// Participant is one player's membership in a game.
type Participant struct {
	ID          uuid.UUID      `json:"id"`
	GameID      uuid.UUID      `json:"game_id"`
	UserID      *uuid.UUID     `json:"user_id,omitempty"`
	DisplayName string         `json:"display_name"`
	Score       int            `json:"score"`
	Answers     []AnswerRecord `json:"answers"`
	JoinedAt    time.Time      `json:"joined_at"`
}

// HasAnswered reports whether an answer exists for the question index.
func (p *Participant) HasAnswered(questionIndex int) bool {
	for _, a := range p.Answers {
		if a.QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// PresenceKey identifies the participant on the realtime channel: the user id
// for registered users, the participant id for guests.
func (p *Participant) PresenceKey() string {
	if p.UserID != nil {
		return p.UserID.String()
	}
	return "guest:" + p.ID.String()
}

// BelongsTo reports whether the row is owned by userID.
func (p *Participant) BelongsTo(userID uuid.UUID) bool {
	return p.UserID != nil && *p.UserID == userID
}
