package models

import "github.com/google/uuid"

// SongOption is a playable answer choice: the correct song or a detractor.
type SongOption struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// Question is one multiple-choice prompt in a question set.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	QuestionSetID uuid.UUID    `json:"question_set_id"`
	CorrectSong   SongOption   `json:"correct_song"`
	Detractors    []SongOption `json:"detractors"`
	OrderIndex    int          `json:"order_index"`
}

// Options returns the correct song followed by the detractors.
// Presentation code is expected to shuffle them.
func (q Question) Options() []SongOption {
	opts := make([]SongOption, 0, len(q.Detractors)+1)
	opts = append(opts, q.CorrectSong)
	return append(opts, q.Detractors...)
}

// IsCorrect reports whether optionID names the correct song.
func (q Question) IsCorrect(optionID string) bool {
	return optionID != "" && optionID == q.CorrectSong.ID
}

// QuestionSet is an ordered collection of questions owned by a user.
type QuestionSet struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions,omitempty"`
}
