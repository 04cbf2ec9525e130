package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/sqlutil"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	GetGame(ctx context.Context, id uuid.UUID) (GameRow, error)
	GetPendingGameByCode(ctx context.Context, code string) (GameRow, error)
	LockGame(ctx context.Context, id uuid.UUID) (GameRow, error)
	CreateGame(ctx context.Context, arg CreateGameParams) (GameRow, error)
	UpdateGameStatus(ctx context.Context, arg UpdateGameStatusParams) (GameRow, error)
	ListQuestions(ctx context.Context, questionSetID uuid.UUID) ([]QuestionRow, error)
	ListParticipants(ctx context.Context, gameID uuid.UUID) ([]ParticipantRow, error)
	GetParticipant(ctx context.Context, id uuid.UUID) (ParticipantRow, error)
	IsMember(ctx context.Context, gameID, memberID uuid.UUID) (bool, error)
	CountParticipants(ctx context.Context, gameID uuid.UUID) (int, error)
	CreateParticipant(ctx context.Context, arg CreateParticipantParams) error
	DeleteParticipant(ctx context.Context, id uuid.UUID) error
	UpdateParticipantProgress(ctx context.Context, arg UpdateParticipantProgressParams) error
}

// Repository is the unscoped data access layer. Request paths should go
// through ForViewer.
type Repository struct {
	db      *sql.DB
	queries Querier
}

// NewRepository creates a repository backed by db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, queries: NewQueries(db)}
}

// NewRepositoryWithQuerier creates a repository without transaction support.
// Multi-statement writes run directly on q.
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{queries: q}
}

func (r *Repository) inTx(ctx context.Context, fn func(q Querier) error) error {
	if r.db == nil {
		return fn(r.queries)
	}
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) Querier { return NewQueries(tx) }, fn)
}

// GetGame returns a game with its ordered questions.
func (r *Repository) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row, err := r.queries.GetGame(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", mapError(err))
	}
	game := gameFromRow(row)

	questions, err := r.queries.ListQuestions(ctx, row.QuestionSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	for _, q := range questions {
		question, err := questionFromRow(q)
		if err != nil {
			return nil, err
		}
		game.Questions = append(game.Questions, question)
	}
	return game, nil
}

// GetGameRecord returns the game row without questions.
func (r *Repository) GetGameRecord(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row, err := r.queries.GetGame(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", mapError(err))
	}
	return gameFromRow(row), nil
}

// GetPendingGameByCode resolves a join code to its pending game.
func (r *Repository) GetPendingGameByCode(ctx context.Context, code string) (*models.Game, error) {
	row, err := r.queries.GetPendingGameByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by code: %w", mapError(err))
	}
	return gameFromRow(row), nil
}

// CreateGameRequest describes a new pending game.
type CreateGameRequest struct {
	// ID is generated when zero.
	ID            uuid.UUID
	QuestionSetID uuid.UUID
	HostUserID    uuid.UUID
	TimeLimit     int
	MaxPlayers    int
	Code          string
}

// CreateGame inserts a pending game.
func (r *Repository) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	code := req.Code
	row, err := r.queries.CreateGame(ctx, CreateGameParams{
		ID:            id,
		QuestionSetID: req.QuestionSetID,
		HostUserID:    req.HostUserID,
		TimeLimit:     int32(req.TimeLimit),
		Code:          sqlutil.ToSqlString(nonEmpty(code)),
		MaxPlayers:    int32(req.MaxPlayers),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", mapError(err))
	}
	return gameFromRow(row), nil
}

// JoinRequest adds a registered user (UserID set) or a guest (DisplayName set).
type JoinRequest struct {
	GameID      uuid.UUID
	UserID      *uuid.UUID
	DisplayName string
}

// JoinGame inserts a participant while the game is pending and below
// max_players.
func (r *Repository) JoinGame(ctx context.Context, req JoinRequest) (*models.Participant, error) {
	if req.UserID == nil && req.DisplayName == "" {
		return nil, fmt.Errorf("guest display name is required")
	}

	var out *models.Participant
	err := r.inTx(ctx, func(q Querier) error {
		game, err := q.LockGame(ctx, req.GameID)
		if err != nil {
			return mapError(err)
		}
		if models.GameStatus(game.Status) != models.GameStatusPending {
			return ErrNotJoinable
		}
		n, err := q.CountParticipants(ctx, req.GameID)
		if err != nil {
			return err
		}
		if n >= int(game.MaxPlayers) {
			return ErrGameFull
		}

		id := uuid.New()
		var name *string
		if req.DisplayName != "" {
			name = &req.DisplayName
		}
		if err := q.CreateParticipant(ctx, CreateParticipantParams{
			ID:          id,
			GameID:      req.GameID,
			UserID:      sqlutil.ToNullUUID(req.UserID),
			DisplayName: sqlutil.ToSqlString(name),
		}); err != nil {
			return mapError(err)
		}

		row, err := q.GetParticipant(ctx, id)
		if err != nil {
			return err
		}
		out, err = participantFromRow(row)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join game: %w", err)
	}
	return out, nil
}

// ListParticipants returns a game's participants in join order.
func (r *Repository) ListParticipants(ctx context.Context, gameID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.queries.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	out := make([]models.Participant, 0, len(rows))
	for _, row := range rows {
		p, err := participantFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// GetParticipant returns one participant row.
func (r *Repository) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	row, err := r.queries.GetParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", mapError(err))
	}
	return participantFromRow(row)
}

// IsMember reports whether memberID participates in the game.
func (r *Repository) IsMember(ctx context.Context, gameID, memberID uuid.UUID) (bool, error) {
	ok, err := r.queries.IsMember(ctx, gameID, memberID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// DeleteParticipant removes a participant row.
func (r *Repository) DeleteParticipant(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteParticipant(ctx, id); err != nil {
		return fmt.Errorf("failed to delete participant: %w", mapError(err))
	}
	return nil
}

// UpdateGameStatus moves a game forward from pending to in_progress to
// completed. The join code is cleared on any move out of pending.
func (r *Repository) UpdateGameStatus(ctx context.Context, id uuid.UUID, update models.GameStatusUpdate) (*models.Game, error) {
	var out *models.Game
	err := r.inTx(ctx, func(q Querier) error {
		current, err := q.LockGame(ctx, id)
		if err != nil {
			return mapError(err)
		}
		if !validTransition(models.GameStatus(current.Status), update.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatus, current.Status, update.Status)
		}
		row, err := q.UpdateGameStatus(ctx, UpdateGameStatusParams{
			ID:        id,
			Status:    string(update.Status),
			StartedAt: sqlutil.ToSqlTime(update.StartedAt),
			EndedAt:   sqlutil.ToSqlTime(update.EndedAt),
			ClearCode: update.ClearCode || update.Status != models.GameStatusPending,
		})
		if err != nil {
			return err
		}
		out = gameFromRow(row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update game status: %w", err)
	}
	return out, nil
}

func validTransition(from, to models.GameStatus) bool {
	switch from {
	case models.GameStatusPending:
		return to == models.GameStatusInProgress || to == models.GameStatusCompleted
	case models.GameStatusInProgress:
		return to == models.GameStatusCompleted
	}
	return false
}

// UpdateParticipantProgress appends answer to the participant's records and
// adds points to the score. A second answer for the same question index is
// rejected with ErrDuplicateAnswer.
func (r *Repository) UpdateParticipantProgress(ctx context.Context, id uuid.UUID, answer models.AnswerRecord, points int) (*models.Participant, error) {
	if points < 0 {
		return nil, ErrNegativeScore
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer: %w", err)
	}
	err = r.queries.UpdateParticipantProgress(ctx, UpdateParticipantProgressParams{
		ID:            id,
		Points:        int32(points),
		QuestionIndex: int32(answer.QuestionIndex),
		Answer:        pqtype.NullRawMessage{RawMessage: data, Valid: true},
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row is gone or the index is already recorded.
		if _, getErr := r.GetParticipant(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: question %d", ErrDuplicateAnswer, answer.QuestionIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update participant progress: %w", mapError(err))
	}
	return r.GetParticipant(ctx, id)
}

// ForViewer returns a handle that applies row-level access rules for viewerID.
func (r *Repository) ForViewer(viewerID uuid.UUID) *ViewerStore {
	return &ViewerStore{repo: r, viewerID: viewerID}
}

func gameFromRow(row GameRow) *models.Game {
	return &models.Game{
		ID:            row.ID,
		QuestionSetID: row.QuestionSetID,
		HostUserID:    row.HostUserID,
		Status:        models.GameStatus(row.Status),
		TimeLimit:     int(row.TimeLimit),
		Code:          sqlutil.FromSqlStringPtr(row.Code),
		MaxPlayers:    int(row.MaxPlayers),
		CreatedAt:     row.CreatedAt,
		StartedAt:     sqlutil.FromSqlTime(row.StartedAt),
		EndedAt:       sqlutil.FromSqlTime(row.EndedAt),
	}
}

func questionFromRow(row QuestionRow) (models.Question, error) {
	q := models.Question{
		ID:            row.ID,
		QuestionSetID: row.QuestionSetID,
		OrderIndex:    int(row.OrderIndex),
	}
	if err := json.Unmarshal(row.CorrectSong, &q.CorrectSong); err != nil {
		return q, fmt.Errorf("decode correct song of question %s: %w", row.ID, err)
	}
	if len(row.Detractors) > 0 {
		if err := json.Unmarshal(row.Detractors, &q.Detractors); err != nil {
			return q, fmt.Errorf("decode detractors of question %s: %w", row.ID, err)
		}
	}
	return q, nil
}

func participantFromRow(row ParticipantRow) (*models.Participant, error) {
	p := &models.Participant{
		ID:          row.ID,
		GameID:      row.GameID,
		UserID:      sqlutil.FromNullUUID(row.UserID),
		DisplayName: row.DisplayName,
		Score:       int(row.Score),
		JoinedAt:    row.JoinedAt,
	}
	if row.Answers.Valid {
		if err := json.Unmarshal(row.Answers.RawMessage, &p.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of participant %s: %w", row.ID, err)
		}
	}
	return p, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
