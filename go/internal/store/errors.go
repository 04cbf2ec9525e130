package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrAlreadyJoined = errors.New("already joined")
	ErrGameFull      = errors.New("game is full")
	ErrNotJoinable   = errors.New("game is not accepting players")
	ErrCodeTaken     = errors.New("join code already in use")
	ErrInvalidStatus = errors.New("invalid status transition")
	ErrNegativeScore = errors.New("score must not be negative")

	ErrDuplicateAnswer = errors.New("question already answered")
)

const uniqueViolation = "23505"

// mapError translates driver errors into package sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case "participants_game_user_key":
			return ErrAlreadyJoined
		case "games_pending_code_key":
			return ErrCodeTaken
		}
	}
	return err
}
