package lobby

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

type fakeRepo struct {
	mu           sync.Mutex
	games        map[uuid.UUID]*models.Game
	participants []models.Participant
	takenCodes   map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		games:      make(map[uuid.UUID]*models.Game),
		takenCodes: make(map[string]bool),
	}
}

func (f *fakeRepo) CreateGame(_ context.Context, req store.CreateGameRequest) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenCodes[req.Code] {
		return nil, store.ErrCodeTaken
	}
	code := req.Code
	g := &models.Game{
		ID:            req.ID,
		QuestionSetID: req.QuestionSetID,
		HostUserID:    req.HostUserID,
		Status:        models.GameStatusPending,
		TimeLimit:     req.TimeLimit,
		MaxPlayers:    req.MaxPlayers,
		Code:          &code,
		CreatedAt:     time.Now(),
		Questions:     make([]models.Question, 3),
	}
	f.games[g.ID] = g
	return f.copyGame(g), nil
}

func (f *fakeRepo) copyGame(g *models.Game) *models.Game {
	cp := *g
	return &cp
}

func (f *fakeRepo) GetGame(_ context.Context, id uuid.UUID) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.copyGame(g), nil
}

func (f *fakeRepo) GetPendingGameByCode(_ context.Context, code string) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.games {
		if g.Status == models.GameStatusPending && g.Code != nil && *g.Code == code {
			return f.copyGame(g), nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRepo) JoinGame(_ context.Context, req store.JoinRequest) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[req.GameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if g.Status != models.GameStatusPending {
		return nil, store.ErrNotJoinable
	}
	n := 0
	for _, p := range f.participants {
		if p.GameID != req.GameID {
			continue
		}
		n++
		if req.UserID != nil && p.BelongsTo(*req.UserID) {
			return nil, store.ErrAlreadyJoined
		}
	}
	if n >= g.MaxPlayers {
		return nil, store.ErrGameFull
	}
	p := models.Participant{
		ID:          uuid.New(),
		GameID:      req.GameID,
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Answers:     []models.AnswerRecord{},
		JoinedAt:    time.Now(),
	}
	f.participants = append(f.participants, p)
	return &p, nil
}

func (f *fakeRepo) ListParticipants(_ context.Context, gameID uuid.UUID) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Participant
	for _, p := range f.participants {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteParticipant(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.participants {
		if p.ID == id {
			f.participants = append(f.participants[:i], f.participants[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeRepo) setStatus(id uuid.UUID, status models.GameStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[id].Status = status
}
