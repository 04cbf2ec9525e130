package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/realtime"
	"github.com/WillDent/guess-that-tune/go/internal/realtime/natschannel"
)

// JetStreamPublisher writes change events to the room change stream.
type JetStreamPublisher struct {
	js  jetstream.JetStream
	cfg natschannel.Config
}

func NewJetStreamPublisher(ctx context.Context, js jetstream.JetStream, cfg natschannel.Config) (*JetStreamPublisher, error) {
	if err := natschannel.EnsureStream(ctx, js, cfg); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return &JetStreamPublisher{js: js, cfg: cfg}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, ev realtime.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: natschannel.ChangeSubject(p.cfg.SubjectPrefix, ev.GameID, ev.Table),
		Data:    data,
		Header: nats.Header{
			"Table":   []string{ev.Table},
			"Change":  []string{string(ev.Type)},
			"Game-ID": []string{ev.GameID.String()},
		},
	})
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}

	log.Debug().
		Str("stream", ack.Stream).
		Uint64("seq", ack.Sequence).
		Str("table", ev.Table).
		Msg("change published")
	return nil
}
