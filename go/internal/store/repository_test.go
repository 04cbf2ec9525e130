package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillDent/guess-that-tune/go/internal/models"
)

type fixture struct {
	q      *fakeQuerier
	repo   *Repository
	hostID uuid.UUID
	game   GameRow
}

func newFixture(t *testing.T, status string) *fixture {
	t.Helper()
	q := newFakeQuerier()
	hostID := uuid.New()
	setID := uuid.New()
	game := GameRow{
		ID:            uuid.New(),
		QuestionSetID: setID,
		HostUserID:    hostID,
		Status:        status,
		TimeLimit:     30,
		Code:          sql.NullString{String: "ABC123", Valid: true},
		MaxPlayers:    2,
		CreatedAt:     time.Now(),
	}
	q.games[game.ID] = game
	q.questions[setID] = []QuestionRow{
		{ID: uuid.New(), QuestionSetID: setID, OrderIndex: 0,
			CorrectSong: []byte(`{"id":"s1","name":"Song One","artist":"A"}`),
			Detractors:  []byte(`[{"id":"d1","name":"Other","artist":"B"}]`)},
		{ID: uuid.New(), QuestionSetID: setID, OrderIndex: 1,
			CorrectSong: []byte(`{"id":"s2","name":"Song Two","artist":"C"}`),
			Detractors:  []byte(`[]`)},
	}
	return &fixture{q: q, repo: NewRepositoryWithQuerier(q), hostID: hostID, game: game}
}

func TestRepository_GetGame(t *testing.T) {
	f := newFixture(t, "pending")

	g, err := f.repo.GetGame(context.Background(), f.game.ID)
	require.NoError(t, err)
	require.Len(t, g.Questions, 2)
	assert.Equal(t, "s1", g.Questions[0].CorrectSong.ID)
	assert.Equal(t, "d1", g.Questions[0].Detractors[0].ID)
	assert.Equal(t, models.GameStatusPending, g.Status)
	require.NotNil(t, g.Code)
	assert.Equal(t, "ABC123", *g.Code)

	_, err = f.repo.GetGame(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_JoinGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "pending")
	user := uuid.New()

	p, err := f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, UserID: &user})
	require.NoError(t, err)
	assert.True(t, p.BelongsTo(user))

	_, err = f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, UserID: &user})
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	guest, err := f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, DisplayName: "Guest"})
	require.NoError(t, err)
	assert.Nil(t, guest.UserID)
	assert.Equal(t, "Guest", guest.DisplayName)

	_, err = f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, DisplayName: "Late"})
	assert.ErrorIs(t, err, ErrGameFull)

	_, err = f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID})
	assert.Error(t, err)
}

func TestRepository_JoinGame_NotPending(t *testing.T) {
	f := newFixture(t, "in_progress")
	user := uuid.New()

	_, err := f.repo.JoinGame(context.Background(), JoinRequest{GameID: f.game.ID, UserID: &user})
	assert.ErrorIs(t, err, ErrNotJoinable)
}

func TestRepository_UpdateGameStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "pending")
	now := time.Now()

	g, err := f.repo.UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{
		Status:    models.GameStatusInProgress,
		StartedAt: &now,
		ClearCode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusInProgress, g.Status)
	assert.Nil(t, g.Code)
	require.NotNil(t, g.StartedAt)

	_, err = f.repo.UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{Status: models.GameStatusPending})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	g, err = f.repo.UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{Status: models.GameStatusCompleted, EndedAt: &now})
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, g.Status)
}

func TestRepository_UpdateParticipantProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "pending")
	user := uuid.New()
	p, err := f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, UserID: &user})
	require.NoError(t, err)

	first := models.AnswerRecord{QuestionIndex: 0, SelectedOptionID: "s1", IsCorrect: true, TimeTaken: 4}
	updated, err := f.repo.UpdateParticipantProgress(ctx, p.ID, first, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Score)
	assert.Equal(t, []models.AnswerRecord{first}, updated.Answers)

	second := models.AnswerRecord{QuestionIndex: 1, SelectedOptionID: "s2", IsCorrect: true, TimeTaken: 7}
	updated, err = f.repo.UpdateParticipantProgress(ctx, p.ID, second, 100)
	require.NoError(t, err)
	assert.Equal(t, 200, updated.Score, "points accumulate on the stored score")
	assert.Equal(t, []models.AnswerRecord{first, second}, updated.Answers)

	_, err = f.repo.UpdateParticipantProgress(ctx, p.ID, models.AnswerRecord{QuestionIndex: 0, SelectedOptionID: "d1"}, 100)
	assert.ErrorIs(t, err, ErrDuplicateAnswer)
	stored, err := f.repo.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, stored.Score)
	assert.Len(t, stored.Answers, 2)

	_, err = f.repo.UpdateParticipantProgress(ctx, p.ID, models.AnswerRecord{QuestionIndex: 2}, -1)
	assert.ErrorIs(t, err, ErrNegativeScore)

	_, err = f.repo.UpdateParticipantProgress(ctx, uuid.New(), models.AnswerRecord{}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateGameStatusClearsCode(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	f := newFixture(t, "pending")
	g, err := f.repo.UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{Status: models.GameStatusCompleted, EndedAt: &now})
	require.NoError(t, err)
	assert.Nil(t, g.Code, "a game ended from the lobby drops its join code")

	f = newFixture(t, "pending")
	g, err = f.repo.UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{Status: models.GameStatusInProgress, StartedAt: &now})
	require.NoError(t, err)
	assert.Nil(t, g.Code)
	assert.False(t, f.q.games[f.game.ID].Code.Valid)
}

func TestViewerStore_ReadAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "pending")
	member := uuid.New()
	stranger := uuid.New()
	_, err := f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, UserID: &member})
	require.NoError(t, err)

	_, err = f.repo.ForViewer(stranger).GetGame(ctx, f.game.ID)
	require.NoError(t, err, "pending games are readable by anyone")

	_, err = f.repo.UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{Status: models.GameStatusInProgress})
	require.NoError(t, err)

	_, err = f.repo.ForViewer(stranger).GetGame(ctx, f.game.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = f.repo.ForViewer(stranger).ListParticipants(ctx, f.game.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.repo.ForViewer(member).GetGame(ctx, f.game.ID)
	assert.NoError(t, err)
	ps, err := f.repo.ForViewer(f.hostID).ListParticipants(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
}

func TestViewerStore_WriteAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "pending")
	alice, bob := uuid.New(), uuid.New()
	pa, err := f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, UserID: &alice})
	require.NoError(t, err)
	guest, err := f.repo.JoinGame(ctx, JoinRequest{GameID: f.game.ID, DisplayName: "Guest"})
	require.NoError(t, err)

	_, err = f.repo.ForViewer(alice).UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{Status: models.GameStatusInProgress})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = f.repo.ForViewer(bob).UpdateParticipantProgress(ctx, pa.ID, models.AnswerRecord{}, 100)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = f.repo.ForViewer(alice).UpdateParticipantProgress(ctx, pa.ID, models.AnswerRecord{}, 100)
	assert.NoError(t, err)
	_, err = f.repo.ForViewer(guest.ID).UpdateParticipantProgress(ctx, guest.ID, models.AnswerRecord{}, 100)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.repo.ForViewer(alice).DeleteParticipant(ctx, guest.ID), ErrAccessDenied)
	assert.NoError(t, f.repo.ForViewer(f.hostID).DeleteParticipant(ctx, guest.ID))
	assert.NoError(t, f.repo.ForViewer(alice).DeleteParticipant(ctx, pa.ID))

	_, err = f.repo.ForViewer(f.hostID).UpdateGameStatus(ctx, f.game.ID, models.GameStatusUpdate{Status: models.GameStatusInProgress})
	assert.NoError(t, err)
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapError(&pq.Error{Code: uniqueViolation, Constraint: "participants_game_user_key"}), ErrAlreadyJoined)
	assert.ErrorIs(t, mapError(&pq.Error{Code: uniqueViolation, Constraint: "games_pending_code_key"}), ErrCodeTaken)

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}
