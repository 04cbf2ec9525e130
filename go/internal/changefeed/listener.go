package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

type ListenerConfig struct {
	DatabaseURL   string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string // Channel name to LISTEN on
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	PingInterval  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: store.NotifyChannel,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
		MaxRetries:    5,
		RetryDelay:    200 * time.Millisecond,
		PingInterval:  90 * time.Second,
	}
}

// Listener relays Postgres row-change notifications to the publisher.
// Delivery is best effort: notifications raised while disconnected are lost.
type Listener struct {
	rows      RowFetcher
	listener  *pq.Listener
	publisher Publisher
	codes     CodeReleaser
	cfg       ListenerConfig

	mu       sync.Mutex
	running  bool
	relayed  uint64
	failed   uint64
	lastSent time.Time
}

// ListenerStats is a point-in-time view of relay progress.
type ListenerStats struct {
	Running  bool
	Relayed  uint64
	Failed   uint64
	LastSent time.Time
}

func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ListenerStats{Running: l.running, Relayed: l.relayed, Failed: l.failed, LastSent: l.lastSent}
}

func (l *Listener) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}

func (l *Listener) record(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.failed++
		return
	}
	l.relayed++
	l.lastSent = time.Now()
}

func NewListener(rows RowFetcher, publisher Publisher, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		rows:      rows,
		listener:  l,
		publisher: publisher,
		cfg:       cfg,
	}, nil
}

// ReleaseCodesWith makes the listener free join codes of games that leave
// the pending status.
func (l *Listener) ReleaseCodesWith(codes CodeReleaser) {
	l.codes = codes
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()
	l.setRunning(true)
	defer l.setRunning(false)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification turns a notification into a change event carrying the
// current row and publishes it.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	var n Notification
	if err := json.Unmarshal([]byte(extra), &n); err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}

	ev, game, err := l.buildEvent(ctx, n)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug().
			Str("table", n.Table).
			Str("id", n.ID.String()).
			Msg("row gone before it could be relayed")
		return nil
	}
	if err != nil {
		return err
	}
	if game != nil && game.Status != models.GameStatusPending {
		l.releaseCode(ctx, game.ID)
	}

	err = l.publishWithRetry(ctx, ev)
	l.record(err)
	if err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}

	log.Debug().
		Str("game_id", n.GameID.String()).
		Str("table", n.Table).
		Str("type", string(n.Type)).
		Msg("relayed change")
	return nil
}

func (l *Listener) buildEvent(ctx context.Context, n Notification) (realtime.ChangeEvent, *models.Game, error) {
	ev := realtime.ChangeEvent{Table: n.Table, Type: n.Type, GameID: n.GameID}

	if n.Type == realtime.ChangeDelete {
		old, err := json.Marshal(map[string]string{"id": n.ID.String(), "game_id": n.GameID.String()})
		if err != nil {
			return ev, nil, err
		}
		ev.Old = old
		return ev, nil, nil
	}

	var row any
	var game *models.Game
	var err error
	switch n.Table {
	case realtime.TableGames:
		game, err = l.rows.GetGameRecord(ctx, n.ID)
		row = game
	case realtime.TableParticipants:
		row, err = l.rows.GetParticipant(ctx, n.ID)
	default:
		return ev, nil, fmt.Errorf("unexpected table %q", n.Table)
	}
	if err != nil {
		return ev, nil, fmt.Errorf("failed to fetch %s row: %w", n.Table, err)
	}

	ev.New, err = json.Marshal(row)
	if err != nil {
		return ev, nil, fmt.Errorf("marshal %s row: %w", n.Table, err)
	}
	return ev, game, nil
}

func (l *Listener) releaseCode(ctx context.Context, gameID uuid.UUID) {
	if l.codes == nil {
		return
	}
	if err := l.codes.ReleaseGame(ctx, gameID); err != nil {
		log.Warn().
			Err(err).
			Str("game_id", gameID.String()).
			Msg("failed to release join code")
	}
}

// publishWithRetry attempts to publish an event with a linear backoff.
func (l *Listener) publishWithRetry(ctx context.Context, ev realtime.ChangeEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := l.publisher.Publish(ctx, ev); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("game_id", ev.GameID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("game_id", ev.GameID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
