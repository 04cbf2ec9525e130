package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

var (
	// ErrNotFound is returned by Initialize when the game is missing or the
	// viewer may not read it.
	ErrNotFound = errors.New("game not found")
	// ErrClosed is returned when a coordinator is used after Close.
	ErrClosed = errors.New("room closed")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("room already initialized")
)

// Update is one item on the coordinator's output stream: either a fresh
// snapshot or a transient notice.
type Update struct {
	State  *RoomState `json:"state,omitempty"`
	Notice *Notice    `json:"notice,omitempty"`
}

// Coordinator keeps one viewer's room state in sync with the store and the
// realtime channel, and drives the host countdown.
type Coordinator struct {
	store    Store
	channels realtime.ChannelFactory
	clock    clockwork.Clock
	logger   zerolog.Logger
	cfg      Config

	ctx     context.Context
	cancel  context.CancelFunc
	updates chan Update

	mu        sync.Mutex
	state     RoomState
	gameID    uuid.UUID
	channel   realtime.Channel
	closed    bool
	answering map[int]bool

	ticker   clockwork.Ticker
	tickStop chan struct{}
	tickGen  uint64
}

// NewCoordinator creates an uninitialized coordinator.
func NewCoordinator(st Store, channels realtime.ChannelFactory, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     st,
		channels:  channels,
		clock:     clockwork.NewRealClock(),
		logger:    log.Logger,
		cfg:       DefaultConfig(),
		answering: make(map[int]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.updates = make(chan Update, c.cfg.UpdatesBuffer)
	return c
}

// Initialize loads the game, opens the realtime channel and announces the
// viewer's presence. A missing or unreadable game yields ErrNotFound.
func (c *Coordinator) Initialize(ctx context.Context, gameID, viewerID uuid.UUID) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.channel != nil {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.gameID = gameID
	c.state = NewRoomState(viewerID)
	c.logger = c.logger.With().
		Str("game_id", gameID.String()).
		Str("viewer_id", viewerID.String()).
		Logger()
	ch := c.channels.Channel(gameID)
	c.channel = ch
	c.mu.Unlock()

	ch.OnPresence(c.onPresence)
	ch.OnChange(realtime.TableParticipants, c.onParticipantChange)
	ch.OnChange(realtime.TableGames, c.onGameChange)
	ch.OnBroadcast(BroadcastPlayerReady, c.onPlayerReady)
	ch.OnBroadcast(BroadcastQuestionChanged, c.onQuestionChanged)
	ch.OnBroadcast(BroadcastTimeSync, c.onTimeSync)
	ch.OnBroadcast(BroadcastGameEnded, c.onGameEnded)
	ch.OnBroadcast(BroadcastStateRequest, c.onStateRequest)
	ch.OnBroadcast(BroadcastStateSync, c.onStateSync)

	if err := ch.Subscribe(ctx); err != nil {
		c.Close()
		return fmt.Errorf("subscribe to game %s: %w", gameID, err)
	}
	if c.isClosed() {
		_ = ch.Unsubscribe()
		return ErrClosed
	}

	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		c.Close()
		return loadError("game", gameID, err)
	}
	participants, err := c.store.ListParticipants(ctx, gameID)
	if err != nil {
		c.Close()
		return loadError("participants", gameID, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.applyLocked(Loaded{Game: *game, Participants: participants})
	presence := realtime.Presence{
		Key:      c.state.ViewerKey(),
		UserID:   viewerID.String(),
		OnlineAt: c.clock.Now(),
	}
	if me, ok := c.state.Viewer(); ok {
		presence.Name = me.DisplayName
	}
	isHost := c.state.IsHost
	playing := c.state.GameState == GameStatePlaying
	c.mu.Unlock()

	if err := ch.Track(ctx, presence); err != nil {
		c.logger.Warn().Err(err).Msg("failed to track presence")
	}
	if playing {
		// Joined mid-game: ask the room where it is.
		c.send(ctx, ch, BroadcastStateRequest, StateRequestPayload{Key: presence.Key})
	}

	c.logger.Info().
		Bool("is_host", isHost).
		Int("participants", len(participants)).
		Msg("room initialized")
	return nil
}

func loadError(what string, gameID uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAccessDenied) {
		return fmt.Errorf("load %s for game %s: %w", what, gameID, ErrNotFound)
	}
	return fmt.Errorf("load %s for game %s: %w", what, gameID, err)
}

// Snapshot returns a copy of the current room state.
func (c *Coordinator) Snapshot() RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Updates streams snapshots and notices. The channel is closed by Close.
func (c *Coordinator) Updates() <-chan Update {
	return c.updates
}

// Close stops the countdown and leaves the realtime channel. It is safe to
// call more than once and before Initialize.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	ch := c.channel
	c.cancel()
	close(c.updates)
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Unsubscribe(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to unsubscribe from game channel")
		}
	}
	c.logger.Debug().Msg("room closed")
	return nil
}

// SetReady announces the viewer's lobby readiness to the room.
func (c *Coordinator) SetReady(ctx context.Context, ready bool) {
	c.mu.Lock()
	if c.closed || !c.state.Loaded() {
		c.mu.Unlock()
		return
	}
	key := c.state.ViewerKey()
	c.applyLocked(PlayerReady{Key: key, Ready: ready})
	ch := c.channel
	c.mu.Unlock()

	c.send(ctx, ch, BroadcastPlayerReady, PlayerReadyPayload{Key: key, Ready: ready})
}

// StartGame moves a pending game into play. Host only. The countdown starts
// when the status change comes back through the change feed.
func (c *Coordinator) StartGame(ctx context.Context) {
	c.mu.Lock()
	if c.closed || !c.state.IsHost || !c.state.Loaded() || c.state.Game.Status != models.GameStatusPending {
		c.mu.Unlock()
		return
	}
	gameID := c.gameID
	c.mu.Unlock()

	now := c.clock.Now()
	_, err := c.store.UpdateGameStatus(ctx, gameID, models.GameStatusUpdate{
		Status:    models.GameStatusInProgress,
		StartedAt: &now,
		ClearCode: true,
	})
	if err != nil {
		c.notifyError("Failed to start game", err)
		return
	}
	c.logger.Info().Msg("game started")
}

// SubmitAnswer records the viewer's answer to the current question. Only the
// first submission per question is written.
func (c *Coordinator) SubmitAnswer(ctx context.Context, optionID string) {
	c.mu.Lock()
	s := c.state
	idx := s.CurrentQuestion
	q, hasQuestion := s.Question()
	me, isPlayer := s.Viewer()
	if c.closed || !hasQuestion || !isPlayer || s.GameState != GameStatePlaying ||
		me.HasAnswered(idx) || c.answering[idx] {
		c.mu.Unlock()
		return
	}
	c.answering[idx] = true

	correct := q.IsCorrect(optionID)
	answer := models.AnswerRecord{
		QuestionIndex:    idx,
		SelectedOptionID: optionID,
		IsCorrect:        correct,
		TimeTaken:        max(s.Game.TimeLimit-s.TimeRemaining, 0),
	}
	points := 0
	if correct {
		points = c.cfg.PointsPerCorrect
	}
	c.mu.Unlock()

	updated, err := c.store.UpdateParticipantProgress(ctx, me.ID, answer, points)
	if errors.Is(err, store.ErrDuplicateAnswer) {
		c.logger.Debug().Int("question_index", idx).Msg("answer already recorded")
		return
	}
	if err != nil {
		c.mu.Lock()
		delete(c.answering, idx)
		c.mu.Unlock()
		c.notifyError("Failed to submit answer", err)
		return
	}

	// Apply the written row now; its change notification may lag behind the
	// next question.
	c.mu.Lock()
	if !c.closed {
		c.applyLocked(ParticipantUpdated{Participant: *updated})
	}
	c.mu.Unlock()

	c.logger.Debug().
		Int("question_index", idx).
		Bool("correct", correct).
		Msg("answer submitted")
}

// NextQuestion advances the room to the following question. Host only;
// ignored on the last question.
func (c *Coordinator) NextQuestion(ctx context.Context) {
	c.mu.Lock()
	s := c.state
	if c.closed || !s.IsHost || s.GameState != GameStatePlaying || s.IsLastQuestion() {
		c.mu.Unlock()
		return
	}
	next := s.CurrentQuestion + 1
	c.applyLocked(QuestionChanged{Index: next})
	ch := c.channel
	c.mu.Unlock()

	c.send(ctx, ch, BroadcastQuestionChanged, QuestionChangedPayload{Index: next})
}

// EndGame completes the game for everyone. Host only.
func (c *Coordinator) EndGame(ctx context.Context) {
	c.mu.Lock()
	if c.closed || !c.state.IsHost || !c.state.Loaded() || c.state.GameState == GameStateFinished {
		c.mu.Unlock()
		return
	}
	gameID := c.gameID
	c.mu.Unlock()

	c.finishGame(ctx, gameID)
}

func (c *Coordinator) finishGame(ctx context.Context, gameID uuid.UUID) {
	now := c.clock.Now()
	_, err := c.store.UpdateGameStatus(ctx, gameID, models.GameStatusUpdate{
		Status:    models.GameStatusCompleted,
		EndedAt:   &now,
		ClearCode: true,
	})
	if err != nil {
		c.notifyError("Failed to end game", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.applyLocked(GameEnded{})
	ch := c.channel
	c.mu.Unlock()

	c.send(ctx, ch, BroadcastGameEnded, GameEndedPayload{})
	c.logger.Info().Msg("game ended")
}

// applyLocked runs the reducer and performs its effects. c.mu must be held.
func (c *Coordinator) applyLocked(ev Event) {
	next, fx := Reduce(c.state, ev)
	c.state = next

	if fx.StopTimer {
		c.stopTimerLocked()
	}
	if fx.StartTimer {
		c.startTimerLocked()
	}
	for _, n := range fx.Notices {
		c.emitLocked(Update{Notice: &n})
	}
	snapshot := c.state.clone()
	c.emitLocked(Update{State: &snapshot})
}

func (c *Coordinator) emitLocked(u Update) {
	if c.closed {
		return
	}
	select {
	case c.updates <- u:
	default:
		c.logger.Warn().Msg("updates buffer full, dropping update")
	}
}

func (c *Coordinator) notifyError(msg string, err error) {
	c.logger.Error().Err(err).Msg(msg)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(Update{Notice: &Notice{Kind: NoticeError, Message: msg}})
}

func (c *Coordinator) send(ctx context.Context, ch realtime.Channel, event string, payload any) {
	if ch == nil {
		return
	}
	if err := ch.Send(ctx, event, payload); err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("failed to broadcast")
	}
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Realtime handlers.

func (c *Coordinator) onPresence(ev realtime.PresenceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	switch ev.Type {
	case realtime.PresenceSync:
		c.applyLocked(PresenceSynced{State: ev.State})
	case realtime.PresenceJoin:
		c.applyLocked(PresenceJoined{Key: ev.Key, Presence: ev.Presence})
	case realtime.PresenceLeave:
		c.applyLocked(PresenceLeft{Key: ev.Key})
	}
}

func (c *Coordinator) onParticipantChange(ev realtime.ChangeEvent) {
	switch ev.Type {
	case realtime.ChangeInsert:
		c.reloadParticipants()

	case realtime.ChangeUpdate:
		var p models.Participant
		if err := json.Unmarshal(ev.New, &p); err != nil {
			c.logger.Warn().Err(err).Msg("invalid participant change payload")
			return
		}
		c.mu.Lock()
		if c.closed || !c.state.Loaded() {
			c.mu.Unlock()
			return
		}
		known := c.state.playerIndex(p) >= 0
		if known {
			c.applyLocked(ParticipantUpdated{Participant: p})
		}
		c.mu.Unlock()
		if !known {
			c.reloadParticipants()
		}

	case realtime.ChangeDelete:
		var old struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			c.logger.Warn().Err(err).Msg("invalid participant delete payload")
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.closed {
			c.applyLocked(ParticipantDeleted{ID: old.ID})
		}
	}
}

func (c *Coordinator) reloadParticipants() {
	c.mu.Lock()
	if c.closed || !c.state.Loaded() {
		c.mu.Unlock()
		return
	}
	gameID := c.gameID
	c.mu.Unlock()

	participants, err := c.store.ListParticipants(c.ctx, gameID)
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("failed to reload participants")
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.applyLocked(ParticipantsReloaded{Participants: participants})
	}
}

func (c *Coordinator) onGameChange(ev realtime.ChangeEvent) {
	if ev.Type != realtime.ChangeUpdate {
		return
	}
	var g models.Game
	if err := json.Unmarshal(ev.New, &g); err != nil {
		c.logger.Warn().Err(err).Msg("invalid game change payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.applyLocked(GameUpdated{Game: g})
	}
}

func (c *Coordinator) onPlayerReady(ev realtime.BroadcastEvent) {
	var p PlayerReadyPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Key == "" {
		c.logger.Warn().Err(err).Msg("invalid player_ready payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.applyLocked(PlayerReady{Key: p.Key, Ready: p.Ready})
	}
}

func (c *Coordinator) onQuestionChanged(ev realtime.BroadcastEvent) {
	var p QuestionChangedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		c.logger.Warn().Err(err).Msg("invalid question_changed payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.applyLocked(QuestionChanged{Index: p.Index})
	}
}

func (c *Coordinator) onTimeSync(ev realtime.BroadcastEvent) {
	var p TimeSyncPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		c.logger.Warn().Err(err).Msg("invalid time_sync payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.applyLocked(TimeSynced{TimeRemaining: p.TimeRemaining})
	}
}

func (c *Coordinator) onGameEnded(realtime.BroadcastEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.applyLocked(GameEnded{})
	}
}

func (c *Coordinator) onStateRequest(ev realtime.BroadcastEvent) {
	var p StateRequestPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Key == "" {
		c.logger.Warn().Err(err).Msg("invalid state_request payload")
		return
	}
	c.mu.Lock()
	if c.closed || c.state.GameState != GameStatePlaying {
		c.mu.Unlock()
		return
	}
	reply := StateSyncPayload{
		Key:           p.Key,
		Index:         c.state.CurrentQuestion,
		TimeRemaining: c.state.TimeRemaining,
	}
	ch := c.channel
	c.mu.Unlock()

	c.send(c.ctx, ch, BroadcastStateSync, reply)
}

func (c *Coordinator) onStateSync(ev realtime.BroadcastEvent) {
	var p StateSyncPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		c.logger.Warn().Err(err).Msg("invalid state_sync payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || p.Key != c.state.ViewerKey() {
		return
	}
	c.applyLocked(StateSynced{Index: p.Index, TimeRemaining: p.TimeRemaining})
}

// Countdown.

// startTimerLocked replaces any running ticker so at most one is active.
func (c *Coordinator) startTimerLocked() {
	c.stopTimerLocked()
	c.tickGen++
	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	stop := make(chan struct{})
	c.ticker, c.tickStop = ticker, stop
	go c.runTicker(ticker, stop, c.tickGen)
}

func (c *Coordinator) stopTimerLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.tickStop)
	c.ticker, c.tickStop = nil, nil
}

func (c *Coordinator) runTicker(ticker clockwork.Ticker, stop <-chan struct{}, gen uint64) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.tick(gen)
		}
	}
}

func (c *Coordinator) tick(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.tickGen || c.ticker == nil {
		c.mu.Unlock()
		return
	}
	prev := c.state.TimeRemaining
	c.applyLocked(TimerTicked{})

	s := c.state
	var syncTime, advance, end bool
	if s.IsHost && s.GameState == GameStatePlaying {
		rem := s.TimeRemaining
		switch {
		case prev > 0 && rem == 0 && !s.IsLastQuestion():
			advance = true
		case prev > 0 && rem == 0:
			end = true
		case rem > 0 && rem < prev && rem%c.cfg.TimeSyncEvery == 0:
			syncTime = true
		}
	}
	next := s.CurrentQuestion + 1
	if advance {
		c.applyLocked(QuestionChanged{Index: next})
	}
	ch, gameID := c.channel, c.gameID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	switch {
	case syncTime:
		c.send(ctx, ch, BroadcastTimeSync, TimeSyncPayload{TimeRemaining: s.TimeRemaining})
	case advance:
		c.send(ctx, ch, BroadcastQuestionChanged, QuestionChangedPayload{Index: next})
	case end:
		c.finishGame(ctx, gameID)
	}
}
