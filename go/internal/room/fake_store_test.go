package room

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

// fakeStore keeps rows in memory and emits change notifications on the hub
// after every write, the way the change feed does in production.
type fakeStore struct {
	hub *realtime.MemoryHub

	mu           sync.Mutex
	games        map[uuid.UUID]models.Game
	participants map[uuid.UUID]models.Participant
	denied       map[uuid.UUID]bool

	statusUpdates  []models.GameStatusUpdate
	progressCalls  int
	progressErr    error
	statusErr      error
	progressGate   chan struct{}
	progressQueued chan struct{}

	// holdChanges queues participant notifications until flushChanges.
	holdChanges bool
	held        []realtime.ChangeEvent
}

func newFakeStore(hub *realtime.MemoryHub) *fakeStore {
	return &fakeStore{
		hub:          hub,
		games:        make(map[uuid.UUID]models.Game),
		participants: make(map[uuid.UUID]models.Participant),
		denied:       make(map[uuid.UUID]bool),
	}
}

func (s *fakeStore) GetGame(_ context.Context, gameID uuid.UUID) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied[gameID] {
		return nil, store.ErrAccessDenied
	}
	g, ok := s.games[gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	g.Questions = append([]models.Question(nil), g.Questions...)
	return &g, nil
}

func (s *fakeStore) ListParticipants(_ context.Context, gameID uuid.UUID) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied[gameID] {
		return nil, store.ErrAccessDenied
	}
	var out []models.Participant
	for _, p := range s.participants {
		if p.GameID == gameID {
			p.Answers = append([]models.AnswerRecord(nil), p.Answers...)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *fakeStore) UpdateGameStatus(_ context.Context, gameID uuid.UUID, update models.GameStatusUpdate) (*models.Game, error) {
	s.mu.Lock()
	s.statusUpdates = append(s.statusUpdates, update)
	if s.statusErr != nil {
		err := s.statusErr
		s.mu.Unlock()
		return nil, err
	}
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	g.Status = update.Status
	if update.StartedAt != nil {
		g.StartedAt = update.StartedAt
	}
	if update.EndedAt != nil {
		g.EndedAt = update.EndedAt
	}
	if update.ClearCode {
		g.Code = nil
	}
	s.games[gameID] = g
	s.mu.Unlock()

	row := g
	row.Questions = nil
	s.publish(realtime.TableGames, realtime.ChangeUpdate, gameID, row, nil)
	return &g, nil
}

func (s *fakeStore) UpdateParticipantProgress(_ context.Context, participantID uuid.UUID, answer models.AnswerRecord, points int) (*models.Participant, error) {
	s.mu.Lock()
	s.progressCalls++
	gate, queued := s.progressGate, s.progressQueued
	s.mu.Unlock()

	if queued != nil {
		queued <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	if s.progressErr != nil {
		err := s.progressErr
		s.mu.Unlock()
		return nil, err
	}
	p, ok := s.participants[participantID]
	if !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	if p.HasAnswered(answer.QuestionIndex) {
		s.mu.Unlock()
		return nil, store.ErrDuplicateAnswer
	}
	p.Score += points
	p.Answers = append(append([]models.AnswerRecord(nil), p.Answers...), answer)
	s.participants[participantID] = p
	s.mu.Unlock()

	s.publish(realtime.TableParticipants, realtime.ChangeUpdate, p.GameID, p, nil)
	return &p, nil
}

func (s *fakeStore) addGame(g models.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

func (s *fakeStore) addParticipant(p models.Participant) {
	s.mu.Lock()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	s.participants[p.ID] = p
	s.mu.Unlock()
	s.publish(realtime.TableParticipants, realtime.ChangeInsert, p.GameID, p, nil)
}

func (s *fakeStore) deleteParticipant(id uuid.UUID) {
	s.mu.Lock()
	p, ok := s.participants[id]
	delete(s.participants, id)
	s.mu.Unlock()
	if ok {
		s.publish(realtime.TableParticipants, realtime.ChangeDelete, p.GameID, nil,
			map[string]uuid.UUID{"id": p.ID, "game_id": p.GameID})
	}
}

func (s *fakeStore) game(id uuid.UUID) models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.games[id]
}

func (s *fakeStore) participant(id uuid.UUID) models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[id]
}

func (s *fakeStore) calls() (status int, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statusUpdates), s.progressCalls
}

func (s *fakeStore) setProgressErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressErr = err
}

func (s *fakeStore) publish(table string, typ realtime.ChangeType, gameID uuid.UUID, newRow, oldRow any) {
	ev := realtime.ChangeEvent{Table: table, Type: typ, GameID: gameID}
	if newRow != nil {
		ev.New, _ = json.Marshal(newRow)
	}
	if oldRow != nil {
		ev.Old, _ = json.Marshal(oldRow)
	}
	s.mu.Lock()
	if s.holdChanges && table == realtime.TableParticipants {
		s.held = append(s.held, ev)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.hub.PublishChange(ev)
}

func (s *fakeStore) setHoldChanges(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdChanges = hold
}

// flushChanges delivers the held notifications in write order.
func (s *fakeStore) flushChanges() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.mu.Unlock()
	for _, ev := range held {
		s.hub.PublishChange(ev)
	}
}

// answerAs writes an answer record directly, as another client would.
func (s *fakeStore) answerAs(participantID uuid.UUID, index int) {
	_, _ = s.UpdateParticipantProgress(context.Background(), participantID,
		models.AnswerRecord{QuestionIndex: index, SelectedOptionID: "x"}, 0)
}

var errStoreDown = errors.New("store unavailable")
