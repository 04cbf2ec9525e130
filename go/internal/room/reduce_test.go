package room

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
)

func testGame(status models.GameStatus, questions int, host uuid.UUID) models.Game {
	g := models.Game{
		ID:         uuid.New(),
		HostUserID: host,
		Status:     status,
		TimeLimit:  30,
		MaxPlayers: 10,
	}
	for i := 0; i < questions; i++ {
		g.Questions = append(g.Questions, models.Question{
			ID:          uuid.New(),
			CorrectSong: models.SongOption{ID: "correct-" + string(rune('a'+i))},
			Detractors:  []models.SongOption{{ID: "wrong-" + string(rune('a'+i))}},
			OrderIndex:  i,
		})
	}
	return g
}

func testParticipant(gameID uuid.UUID, userID uuid.UUID, name string) models.Participant {
	uid := userID
	return models.Participant{
		ID:          uuid.New(),
		GameID:      gameID,
		UserID:      &uid,
		DisplayName: name,
		JoinedAt:    time.Now(),
	}
}

func loadedState(t *testing.T, viewer uuid.UUID, g models.Game, ps ...models.Participant) RoomState {
	t.Helper()
	s, _ := Reduce(NewRoomState(viewer), Loaded{Game: g, Participants: ps})
	require.True(t, s.Loaded())
	return s
}

func TestReduce_Loaded(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusPending, 3, host)
	p := testParticipant(g.ID, host, "Host")

	s, fx := Reduce(NewRoomState(host), Loaded{Game: g, Participants: []models.Participant{p}})
	assert.Equal(t, GameStateLobby, s.GameState)
	assert.True(t, s.IsHost)
	assert.Equal(t, 30, s.TimeRemaining)
	assert.Equal(t, 0, s.CurrentQuestion)
	assert.False(t, fx.StartTimer)
	require.Len(t, s.Players, 1)
	assert.True(t, s.Players[0].IsHost)

	g.Status = models.GameStatusInProgress
	s, fx = Reduce(NewRoomState(uuid.New()), Loaded{Game: g})
	assert.Equal(t, GameStatePlaying, s.GameState)
	assert.False(t, s.IsHost)
	assert.True(t, fx.StartTimer)
}

func TestReduce_IgnoresEventsBeforeLoad(t *testing.T) {
	s := NewRoomState(uuid.New())
	for _, ev := range []Event{
		QuestionChanged{Index: 1},
		TimeSynced{TimeRemaining: 10},
		GameEnded{},
		GameUpdated{Game: testGame(models.GameStatusInProgress, 1, uuid.New())},
		TimerTicked{},
	} {
		next, fx := Reduce(s, ev)
		assert.False(t, next.Loaded(), ev.Type())
		assert.Equal(t, Effects{}, fx, ev.Type())
	}
}

func TestReduce_TimerNeverNegative(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusInProgress, 1, host)
	g.TimeLimit = 3
	s := loadedState(t, host, g)

	for want := 2; want >= 0; want-- {
		s, _ = Reduce(s, TimerTicked{})
		assert.Equal(t, want, s.TimeRemaining)
	}
	s, _ = Reduce(s, TimerTicked{})
	assert.Equal(t, 0, s.TimeRemaining)

	s, _ = Reduce(s, TimeSynced{TimeRemaining: -4})
	assert.Equal(t, 0, s.TimeRemaining)
}

func TestReduce_TimerIdleOutsidePlay(t *testing.T) {
	host := uuid.New()
	s := loadedState(t, host, testGame(models.GameStatusPending, 1, host))
	s, _ = Reduce(s, TimerTicked{})
	assert.Equal(t, 30, s.TimeRemaining)
}

func TestReduce_QuestionChangedResetsTimer(t *testing.T) {
	host := uuid.New()
	s := loadedState(t, host, testGame(models.GameStatusInProgress, 3, host))
	s, _ = Reduce(s, TimerTicked{})
	s, _ = Reduce(s, TimerTicked{})
	require.Equal(t, 28, s.TimeRemaining)

	s, fx := Reduce(s, QuestionChanged{Index: 2})
	assert.Equal(t, 2, s.CurrentQuestion)
	assert.Equal(t, 30, s.TimeRemaining)
	assert.True(t, fx.StartTimer)

	next, fx := Reduce(s, QuestionChanged{Index: 3})
	assert.Equal(t, s, next)
	assert.False(t, fx.StartTimer)

	next, _ = Reduce(s, QuestionChanged{Index: -1})
	assert.Equal(t, 2, next.CurrentQuestion)
}

func TestReduce_GameUpdatedTransitions(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusPending, 2, host)
	s := loadedState(t, host, g)

	row := g
	row.Questions = nil
	row.Status = models.GameStatusInProgress
	s, fx := Reduce(s, GameUpdated{Game: row})
	assert.Equal(t, GameStatePlaying, s.GameState)
	assert.True(t, fx.StartTimer)
	assert.Len(t, s.Game.Questions, 2, "questions survive a row update without them")

	s, fx = Reduce(s, GameUpdated{Game: row})
	assert.False(t, fx.StartTimer, "no restart without a status transition")

	row.Status = models.GameStatusCompleted
	s, fx = Reduce(s, GameUpdated{Game: row})
	assert.Equal(t, GameStateFinished, s.GameState)
	assert.True(t, fx.StopTimer)
}

func TestReduce_Presence(t *testing.T) {
	host, alice := uuid.New(), uuid.New()
	g := testGame(models.GameStatusInProgress, 1, host)
	s := loadedState(t, alice, g,
		testParticipant(g.ID, host, "Host"),
		testParticipant(g.ID, alice, "Alice"))

	s, fx := Reduce(s, PresenceJoined{Key: host.String(), Presence: realtime.Presence{Key: host.String()}})
	require.Len(t, fx.Notices, 1)
	assert.Equal(t, "Host joined the game", fx.Notices[0].Message)
	assert.True(t, s.Players[0].IsOnline)

	s, fx = Reduce(s, PresenceLeft{Key: host.String()})
	assert.False(t, s.Players[0].IsOnline)
	require.Len(t, fx.Notices, 2)
	assert.Equal(t, NoticeHostLeft, fx.Notices[1].Kind)

	_, fx = Reduce(s, PresenceLeft{Key: host.String()})
	assert.Empty(t, fx.Notices, "leave for an absent key is ignored")

	s, fx = Reduce(s, PresenceSynced{State: map[string]realtime.Presence{alice.String(): {Key: alice.String()}}})
	assert.Empty(t, fx.Notices)
	assert.True(t, s.Players[1].IsOnline)
	assert.False(t, s.Players[0].IsOnline)
}

func TestReduce_ParticipantChanges(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusInProgress, 1, host)
	p := testParticipant(g.ID, uuid.New(), "Alice")
	s := loadedState(t, host, g, p)

	p.Score = 100
	p.Answers = []models.AnswerRecord{{QuestionIndex: 0, SelectedOptionID: "correct-a", IsCorrect: true, TimeTaken: 3}}
	s, _ = Reduce(s, ParticipantUpdated{Participant: p})
	assert.Equal(t, 100, s.Players[0].Score)
	assert.True(t, s.Players[0].HasAnswered(0))

	stranger := testParticipant(g.ID, uuid.New(), "Bob")
	next, _ := Reduce(s, ParticipantUpdated{Participant: stranger})
	assert.Len(t, next.Players, 1)

	s, _ = Reduce(s, ParticipantDeleted{ID: p.ID})
	assert.Empty(t, s.Players)
}

func TestReduce_ReadyIsEphemeral(t *testing.T) {
	host, alice := uuid.New(), uuid.New()
	g := testGame(models.GameStatusPending, 1, host)
	s := loadedState(t, host, g, testParticipant(g.ID, alice, "Alice"))

	s, _ = Reduce(s, PlayerReady{Key: alice.String(), Ready: true})
	assert.True(t, s.Players[0].IsReady)
	s, _ = Reduce(s, PlayerReady{Key: alice.String(), Ready: false})
	assert.False(t, s.Players[0].IsReady)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusInProgress, 2, host)
	p := testParticipant(g.ID, host, "Host")
	s := loadedState(t, host, g, p)
	before := s.clone()

	p.Score = 500
	Reduce(s, ParticipantUpdated{Participant: p})
	Reduce(s, PlayerReady{Key: host.String(), Ready: true})
	Reduce(s, QuestionChanged{Index: 1})
	Reduce(s, ParticipantDeleted{ID: p.ID})

	assert.Equal(t, before, s)
}

func TestRoomState_Leaderboard(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusCompleted, 1, host)
	base := time.Now()
	a := testParticipant(g.ID, uuid.New(), "A")
	a.Score, a.JoinedAt = 100, base.Add(2*time.Second)
	b := testParticipant(g.ID, uuid.New(), "B")
	b.Score, b.JoinedAt = 300, base.Add(3*time.Second)
	c := testParticipant(g.ID, uuid.New(), "C")
	c.Score, c.JoinedAt = 100, base.Add(time.Second)

	s := loadedState(t, host, g, a, b, c)
	board := s.Leaderboard()
	require.Len(t, board, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{board[0].DisplayName, board[1].DisplayName, board[2].DisplayName})
	assert.Equal(t, "A", s.Players[0].DisplayName, "leaderboard leaves player order alone")
}

func TestReduce_QuestionChangedOnlyWhilePlaying(t *testing.T) {
	host := uuid.New()
	s := loadedState(t, host, testGame(models.GameStatusPending, 3, host))

	next, fx := Reduce(s, QuestionChanged{Index: 1})
	assert.Equal(t, 0, next.CurrentQuestion)
	assert.False(t, fx.StartTimer, "no countdown in the lobby")

	g := testGame(models.GameStatusCompleted, 3, host)
	s = loadedState(t, host, g)
	next, fx = Reduce(s, QuestionChanged{Index: 1})
	assert.Equal(t, 0, next.CurrentQuestion)
	assert.False(t, fx.StartTimer)
}

func TestReduce_LoadedResumesRunningGame(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusInProgress, 4, host)
	a := testParticipant(g.ID, uuid.New(), "A")
	a.Answers = []models.AnswerRecord{{QuestionIndex: 0}, {QuestionIndex: 1}}
	b := testParticipant(g.ID, uuid.New(), "B")
	b.Answers = []models.AnswerRecord{{QuestionIndex: 0}, {QuestionIndex: 1}, {QuestionIndex: 2}}

	s, fx := Reduce(NewRoomState(host), Loaded{Game: g, Participants: []models.Participant{a, b}})
	assert.Equal(t, 2, s.CurrentQuestion)
	assert.Equal(t, 30, s.TimeRemaining)
	assert.True(t, fx.StartTimer)

	g.Status = models.GameStatusPending
	s, _ = Reduce(NewRoomState(host), Loaded{Game: g, Participants: []models.Participant{a, b}})
	assert.Equal(t, 0, s.CurrentQuestion, "lobby always starts at the first question")
}

func TestReduce_StateSynced(t *testing.T) {
	host := uuid.New()
	s := loadedState(t, host, testGame(models.GameStatusInProgress, 4, host))

	s, fx := Reduce(s, StateSynced{Index: 2, TimeRemaining: 12})
	assert.Equal(t, 2, s.CurrentQuestion)
	assert.Equal(t, 12, s.TimeRemaining)
	assert.True(t, fx.StartTimer)

	next, fx := Reduce(s, StateSynced{Index: 1, TimeRemaining: 5})
	assert.Equal(t, s, next, "never moves back")
	assert.False(t, fx.StartTimer)

	next, fx = Reduce(s, StateSynced{Index: 2, TimeRemaining: 10})
	assert.Equal(t, 10, next.TimeRemaining)
	assert.False(t, fx.StartTimer, "same question keeps the running timer")

	next, _ = Reduce(s, StateSynced{Index: 9, TimeRemaining: 10})
	assert.Equal(t, 2, next.CurrentQuestion)

	lobby := loadedState(t, host, testGame(models.GameStatusPending, 4, host))
	next, _ = Reduce(lobby, StateSynced{Index: 2, TimeRemaining: 10})
	assert.Equal(t, 0, next.CurrentQuestion)
}

func TestReduce_ParticipantUpdatedIgnoresOlderRow(t *testing.T) {
	host := uuid.New()
	g := testGame(models.GameStatusInProgress, 2, host)
	p := testParticipant(g.ID, uuid.New(), "Alice")
	s := loadedState(t, host, g, p)

	first := p
	first.Score = 100
	first.Answers = []models.AnswerRecord{{QuestionIndex: 0, IsCorrect: true}}
	second := first
	second.Score = 200
	second.Answers = append(append([]models.AnswerRecord(nil), first.Answers...), models.AnswerRecord{QuestionIndex: 1, IsCorrect: true})

	s, _ = Reduce(s, ParticipantUpdated{Participant: second})
	s, _ = Reduce(s, ParticipantUpdated{Participant: first})
	assert.Equal(t, 200, s.Players[0].Score)
	assert.Len(t, s.Players[0].Answers, 2)
}
