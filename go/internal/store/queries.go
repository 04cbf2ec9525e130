package store

import (
	"bytes"
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries runs the hand-written SQL against a DBTX.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// Row types mirror table columns.

type GameRow struct {
	ID            uuid.UUID
	QuestionSetID uuid.UUID
	HostUserID    uuid.UUID
	Status        string
	TimeLimit     int32
	Code          sql.NullString
	MaxPlayers    int32
	CreatedAt     time.Time
	StartedAt     sql.NullTime
	EndedAt       sql.NullTime
}

type QuestionRow struct {
	ID            uuid.UUID
	QuestionSetID uuid.UUID
	CorrectSong   []byte
	Detractors    []byte
	OrderIndex    int32
}

type ParticipantRow struct {
	ID          uuid.UUID
	GameID      uuid.UUID
	UserID      uuid.NullUUID
	DisplayName string
	Score       int32
	Answers     pqtype.NullRawMessage
	JoinedAt    time.Time
}

const gameColumns = `id, question_set_id, host_user_id, status, time_limit, code, max_players, created_at, started_at, ended_at`

func scanGame(row interface{ Scan(...interface{}) error }) (GameRow, error) {
	var g GameRow
	err := row.Scan(&g.ID, &g.QuestionSetID, &g.HostUserID, &g.Status, &g.TimeLimit,
		&g.Code, &g.MaxPlayers, &g.CreatedAt, &g.StartedAt, &g.EndedAt)
	return g, err
}

const participantSelect = `
SELECT p.id, p.game_id, p.user_id,
       COALESCE(NULLIF(u.display_name, ''), u.username, p.display_name, '') AS display_name,
       p.score, p.answers, p.joined_at
FROM participants p
LEFT JOIN users u ON u.id = p.user_id`

func scanParticipant(row interface{ Scan(...interface{}) error }) (ParticipantRow, error) {
	var p ParticipantRow
	err := row.Scan(&p.ID, &p.GameID, &p.UserID, &p.DisplayName, &p.Score, &p.Answers, &p.JoinedAt)
	// The driver may reuse its read buffer for the next row.
	p.Answers.RawMessage = bytes.Clone(p.Answers.RawMessage)
	return p, err
}

func (q *Queries) GetGame(ctx context.Context, id uuid.UUID) (GameRow, error) {
	return scanGame(q.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
}

func (q *Queries) GetPendingGameByCode(ctx context.Context, code string) (GameRow, error) {
	return scanGame(q.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE code = $1 AND status = 'pending'`, code))
}

type CreateGameParams struct {
	ID            uuid.UUID
	QuestionSetID uuid.UUID
	HostUserID    uuid.UUID
	TimeLimit     int32
	Code          sql.NullString
	MaxPlayers    int32
}

func (q *Queries) CreateGame(ctx context.Context, arg CreateGameParams) (GameRow, error) {
	return scanGame(q.db.QueryRowContext(ctx, `
INSERT INTO games (id, question_set_id, host_user_id, status, time_limit, code, max_players)
VALUES ($1, $2, $3, 'pending', $4, $5, $6)
RETURNING `+gameColumns,
		arg.ID, arg.QuestionSetID, arg.HostUserID, arg.TimeLimit, arg.Code, arg.MaxPlayers))
}

type UpdateGameStatusParams struct {
	ID        uuid.UUID
	Status    string
	StartedAt sql.NullTime
	EndedAt   sql.NullTime
	ClearCode bool
}

func (q *Queries) UpdateGameStatus(ctx context.Context, arg UpdateGameStatusParams) (GameRow, error) {
	return scanGame(q.db.QueryRowContext(ctx, `
UPDATE games SET
    status     = $2,
    started_at = COALESCE($3, started_at),
    ended_at   = COALESCE($4, ended_at),
    code       = CASE WHEN $5 THEN NULL ELSE code END
WHERE id = $1
RETURNING `+gameColumns,
		arg.ID, arg.Status, arg.StartedAt, arg.EndedAt, arg.ClearCode))
}

func (q *Queries) ListQuestions(ctx context.Context, questionSetID uuid.UUID) ([]QuestionRow, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, question_set_id, correct_song, detractors, order_index
FROM questions
WHERE question_set_id = $1
ORDER BY order_index`, questionSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuestionRow
	for rows.Next() {
		var r QuestionRow
		if err := rows.Scan(&r.ID, &r.QuestionSetID, &r.CorrectSong, &r.Detractors, &r.OrderIndex); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) ListParticipants(ctx context.Context, gameID uuid.UUID) ([]ParticipantRow, error) {
	rows, err := q.db.QueryContext(ctx, participantSelect+`
WHERE p.game_id = $1
ORDER BY p.joined_at, p.id`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ParticipantRow
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) GetParticipant(ctx context.Context, id uuid.UUID) (ParticipantRow, error) {
	return scanParticipant(q.db.QueryRowContext(ctx, participantSelect+` WHERE p.id = $1`, id))
}

// IsMember reports whether memberID is a registered participant's user id or
// a guest participant's id in the game.
func (q *Queries) IsMember(ctx context.Context, gameID, memberID uuid.UUID) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1 FROM participants
    WHERE game_id = $1 AND (user_id = $2 OR (user_id IS NULL AND id = $2))
)`, gameID, memberID).Scan(&ok)
	return ok, err
}

func (q *Queries) CountParticipants(ctx context.Context, gameID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT count(*) FROM participants WHERE game_id = $1`, gameID).Scan(&n)
	return n, err
}

// LockGame takes a row lock so concurrent joins see a stable participant count.
func (q *Queries) LockGame(ctx context.Context, id uuid.UUID) (GameRow, error) {
	return scanGame(q.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, id))
}

type CreateParticipantParams struct {
	ID          uuid.UUID
	GameID      uuid.UUID
	UserID      uuid.NullUUID
	DisplayName sql.NullString
}

func (q *Queries) CreateParticipant(ctx context.Context, arg CreateParticipantParams) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO participants (id, game_id, user_id, display_name)
VALUES ($1, $2, $3, $4)`, arg.ID, arg.GameID, arg.UserID, arg.DisplayName)
	return err
}

func (q *Queries) DeleteParticipant(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type UpdateParticipantProgressParams struct {
	ID            uuid.UUID
	Points        int32
	QuestionIndex int32
	Answer        pqtype.NullRawMessage
}

// UpdateParticipantProgress appends one answer record and adds its points in
// a single statement. No row is updated when the question index is already
// recorded.
func (q *Queries) UpdateParticipantProgress(ctx context.Context, arg UpdateParticipantProgressParams) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE participants SET
    score   = score + $2,
    answers = COALESCE(answers, '[]'::jsonb) || jsonb_build_array($4::jsonb)
WHERE id = $1
  AND NOT COALESCE(answers, '[]'::jsonb) @> jsonb_build_array(jsonb_build_object('question_index', $3::int))`,
		arg.ID, arg.Points, arg.QuestionIndex, arg.Answer)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
