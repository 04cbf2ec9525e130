package natschannel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds NATS connection, stream and presence settings.
type Config struct {
	URL             string        `yaml:"url"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxAge          time.Duration `yaml:"max_age"` // How long to keep change events
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`

	// PresenceInterval is the heartbeat period. Members unseen for three
	// intervals are dropped.
	PresenceInterval time.Duration `yaml:"presence_interval"`
}

func DefaultConfig() Config {
	return Config{
		URL:              nats.DefaultURL,
		StreamName:       "ROOM_CHANGES",
		SubjectPrefix:    "rooms",
		MaxReconnects:    -1, // Infinite
		ReconnectWait:    2 * time.Second,
		MaxAge:           time.Hour,
		Replicas:         1,
		DuplicateWindow:  2 * time.Minute,
		PresenceInterval: 5 * time.Second,
	}
}

// Connect dials NATS and opens a JetStream context.
func Connect(cfg Config) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("guess-that-tune"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates or updates the change-event stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg Config) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Row changes of live game rooms",
		Subjects:    []string{fmt.Sprintf("%s.*.changes.*", cfg.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err != nil {
		if _, err := js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}
	if _, err := js.UpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	return nil
}

// Subject naming. Broadcast and presence ride core NATS; changes are
// persisted in the stream.

func BroadcastSubject(prefix string, gameID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.broadcast", prefix, gameID)
}

func PresenceSubject(prefix string, gameID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.presence", prefix, gameID)
}

func ChangeSubject(prefix string, gameID uuid.UUID, table string) string {
	return fmt.Sprintf("%s.%s.changes.%s", prefix, gameID, table)
}
