package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type fakeQuerier struct {
	mu           sync.Mutex
	games        map[uuid.UUID]GameRow
	questions    map[uuid.UUID][]QuestionRow
	participants map[uuid.UUID]ParticipantRow
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		games:        make(map[uuid.UUID]GameRow),
		questions:    make(map[uuid.UUID][]QuestionRow),
		participants: make(map[uuid.UUID]ParticipantRow),
	}
}

func (f *fakeQuerier) GetGame(_ context.Context, id uuid.UUID) (GameRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return GameRow{}, sql.ErrNoRows
	}
	return g, nil
}

func (f *fakeQuerier) GetPendingGameByCode(_ context.Context, code string) (GameRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.games {
		if g.Code.Valid && g.Code.String == code && g.Status == "pending" {
			return g, nil
		}
	}
	return GameRow{}, sql.ErrNoRows
}

func (f *fakeQuerier) LockGame(ctx context.Context, id uuid.UUID) (GameRow, error) {
	return f.GetGame(ctx, id)
}

func (f *fakeQuerier) CreateGame(_ context.Context, arg CreateGameParams) (GameRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := GameRow{
		ID:            arg.ID,
		QuestionSetID: arg.QuestionSetID,
		HostUserID:    arg.HostUserID,
		Status:        "pending",
		TimeLimit:     arg.TimeLimit,
		Code:          arg.Code,
		MaxPlayers:    arg.MaxPlayers,
	}
	f.games[row.ID] = row
	return row, nil
}

func (f *fakeQuerier) UpdateGameStatus(_ context.Context, arg UpdateGameStatusParams) (GameRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[arg.ID]
	if !ok {
		return GameRow{}, sql.ErrNoRows
	}
	g.Status = arg.Status
	if arg.StartedAt.Valid {
		g.StartedAt = arg.StartedAt
	}
	if arg.EndedAt.Valid {
		g.EndedAt = arg.EndedAt
	}
	if arg.ClearCode {
		g.Code = sql.NullString{}
	}
	f.games[arg.ID] = g
	return g, nil
}

func (f *fakeQuerier) ListQuestions(_ context.Context, setID uuid.UUID) ([]QuestionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QuestionRow(nil), f.questions[setID]...), nil
}

func (f *fakeQuerier) ListParticipants(_ context.Context, gameID uuid.UUID) ([]ParticipantRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ParticipantRow
	for _, p := range f.participants {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (f *fakeQuerier) GetParticipant(_ context.Context, id uuid.UUID) (ParticipantRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return ParticipantRow{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeQuerier) IsMember(_ context.Context, gameID, memberID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.GameID != gameID {
			continue
		}
		if (p.UserID.Valid && p.UserID.UUID == memberID) || (!p.UserID.Valid && p.ID == memberID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQuerier) CountParticipants(_ context.Context, gameID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.participants {
		if p.GameID == gameID {
			n++
		}
	}
	return n, nil
}

func (f *fakeQuerier) CreateParticipant(_ context.Context, arg CreateParticipantParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if arg.UserID.Valid && p.GameID == arg.GameID && p.UserID == arg.UserID {
			return ErrAlreadyJoined
		}
	}
	f.participants[arg.ID] = ParticipantRow{
		ID:          arg.ID,
		GameID:      arg.GameID,
		UserID:      arg.UserID,
		DisplayName: arg.DisplayName.String,
	}
	return nil
}

func (f *fakeQuerier) DeleteParticipant(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.participants[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.participants, id)
	return nil
}

func (f *fakeQuerier) UpdateParticipantProgress(_ context.Context, arg UpdateParticipantProgressParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[arg.ID]
	if !ok {
		return sql.ErrNoRows
	}
	var answers []json.RawMessage
	if p.Answers.Valid {
		if err := json.Unmarshal(p.Answers.RawMessage, &answers); err != nil {
			return err
		}
	}
	for _, raw := range answers {
		var a struct {
			QuestionIndex int32 `json:"question_index"`
		}
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		if a.QuestionIndex == arg.QuestionIndex {
			return sql.ErrNoRows
		}
	}
	answers = append(answers, arg.Answer.RawMessage)
	data, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	p.Score += arg.Points
	p.Answers = pqtype.NullRawMessage{RawMessage: data, Valid: true}
	f.participants[arg.ID] = p
	return nil
}
