package natschannel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/realtime"
)

const (
	headerEvent  = "Event"
	headerOrigin = "Origin"
)

// Factory opens NATS-backed channels.
type Factory struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg Config
}

func NewFactory(nc *nats.Conn, js jetstream.JetStream, cfg Config) *Factory {
	return &Factory{nc: nc, js: js, cfg: cfg}
}

// Channel implements realtime.ChannelFactory.
func (f *Factory) Channel(gameID uuid.UUID) realtime.Channel {
	return &channel{
		f:          f,
		gameID:     gameID,
		origin:     uuid.NewString(),
		changes:    make(map[string][]func(realtime.ChangeEvent)),
		broadcasts: make(map[string][]func(realtime.BroadcastEvent)),
		table:      newPresenceTable(3 * f.cfg.PresenceInterval),
	}
}

type channel struct {
	f      *Factory
	gameID uuid.UUID
	origin string

	mu         sync.Mutex
	presence   []func(realtime.PresenceEvent)
	changes    map[string][]func(realtime.ChangeEvent)
	broadcasts map[string][]func(realtime.BroadcastEvent)

	subscribed bool
	subs       []*nats.Subscription
	consumer   jetstream.ConsumeContext
	tracked    *realtime.Presence
	table      *presenceTable
	stop       chan struct{}
	done       chan struct{}
}

func (c *channel) OnPresence(handler func(realtime.PresenceEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, handler)
}

func (c *channel) OnChange(table string, handler func(realtime.ChangeEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes[table] = append(c.changes[table], handler)
}

func (c *channel) OnBroadcast(event string, handler func(realtime.BroadcastEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts[event] = append(c.broadcasts[event], handler)
}

func (c *channel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	prefix := c.f.cfg.SubjectPrefix
	bsub, err := c.f.nc.Subscribe(BroadcastSubject(prefix, c.gameID), c.handleBroadcast)
	if err != nil {
		return fmt.Errorf("subscribe broadcast: %w", err)
	}
	psub, err := c.f.nc.Subscribe(PresenceSubject(prefix, c.gameID), c.handlePresence)
	if err != nil {
		_ = bsub.Unsubscribe()
		return fmt.Errorf("subscribe presence: %w", err)
	}

	cons, err := c.f.js.OrderedConsumer(ctx, c.f.cfg.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ChangeSubject(prefix, c.gameID, "*")},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		_ = bsub.Unsubscribe()
		_ = psub.Unsubscribe()
		return fmt.Errorf("create change consumer: %w", err)
	}
	cc, err := cons.Consume(c.handleChange)
	if err != nil {
		_ = bsub.Unsubscribe()
		_ = psub.Unsubscribe()
		return fmt.Errorf("consume changes: %w", err)
	}

	c.mu.Lock()
	c.subscribed = true
	c.subs = []*nats.Subscription{bsub, psub}
	c.consumer = cc
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	state := c.table.state()
	c.mu.Unlock()

	go c.heartbeat()

	c.deliverPresence([]realtime.PresenceEvent{{Type: realtime.PresenceSync, State: state}})
	if err := c.publishPresence(presenceMsg{Op: opQuery, Origin: c.origin}); err != nil {
		log.Warn().Err(err).Str("game_id", c.gameID.String()).Msg("presence query failed")
	}

	log.Debug().Str("game_id", c.gameID.String()).Str("origin", c.origin).Msg("subscribed to game channel")
	return nil
}

func (c *channel) Track(ctx context.Context, p realtime.Presence) error {
	if p.Key == "" {
		return fmt.Errorf("presence key is required")
	}
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return realtime.ErrNotSubscribed
	}
	c.tracked = &p
	c.mu.Unlock()

	return c.publishPresence(presenceMsg{Op: opJoin, Origin: c.origin, Presence: p})
}

func (c *channel) Send(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	subscribed := c.subscribed
	c.mu.Unlock()
	if !subscribed {
		return realtime.ErrNotSubscribed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast %s: %w", event, err)
	}
	msg := &nats.Msg{
		Subject: BroadcastSubject(c.f.cfg.SubjectPrefix, c.gameID),
		Data:    data,
		Header: nats.Header{
			headerEvent:  []string{event},
			headerOrigin: []string{c.origin},
		},
	}
	if err := c.f.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish broadcast %s: %w", event, err)
	}
	return nil
}

func (c *channel) Unsubscribe() error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = false
	tracked := c.tracked
	c.tracked = nil
	subs, consumer := c.subs, c.consumer
	c.subs, c.consumer = nil, nil
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
	if tracked != nil {
		if err := c.publishPresence(presenceMsg{Op: opLeave, Origin: c.origin, Presence: *tracked}); err != nil {
			log.Warn().Err(err).Str("game_id", c.gameID.String()).Msg("presence leave failed")
		}
	}

	var firstErr error
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unsubscribe %s: %w", s.Subject, err)
		}
	}
	if consumer != nil {
		consumer.Stop()
	}
	return firstErr
}

func (c *channel) publishPresence(msg presenceMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	return c.f.nc.Publish(PresenceSubject(c.f.cfg.SubjectPrefix, c.gameID), data)
}

// heartbeat re-announces the tracked presence and expires silent members.
func (c *channel) heartbeat() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.mu.Unlock()
	defer close(done)

	ticker := time.NewTicker(c.f.cfg.PresenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			tracked := c.tracked
			events := c.table.expire(now)
			c.mu.Unlock()

			if tracked != nil {
				if err := c.publishPresence(presenceMsg{Op: opHeartbeat, Origin: c.origin, Presence: *tracked}); err != nil {
					log.Warn().Err(err).Str("game_id", c.gameID.String()).Msg("presence heartbeat failed")
				}
			}
			c.deliverPresence(events)
		}
	}
}

func (c *channel) handlePresence(m *nats.Msg) {
	var msg presenceMsg
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		log.Warn().Err(err).Str("game_id", c.gameID.String()).Msg("invalid presence message")
		return
	}

	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	if msg.Op == opQuery {
		tracked := c.tracked
		c.mu.Unlock()
		if tracked != nil && msg.Origin != c.origin {
			if err := c.publishPresence(presenceMsg{Op: opHeartbeat, Origin: c.origin, Presence: *tracked}); err != nil {
				log.Warn().Err(err).Msg("presence reply failed")
			}
		}
		return
	}
	events := c.table.apply(msg, time.Now())
	c.mu.Unlock()

	c.deliverPresence(events)
}

func (c *channel) handleBroadcast(m *nats.Msg) {
	if m.Header.Get(headerOrigin) == c.origin {
		return
	}
	ev := realtime.BroadcastEvent{Event: m.Header.Get(headerEvent), Payload: m.Data}

	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	handlers := append([]func(realtime.BroadcastEvent){}, c.broadcasts[ev.Event]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *channel) handleChange(m jetstream.Msg) {
	var ev realtime.ChangeEvent
	if err := json.Unmarshal(m.Data(), &ev); err != nil {
		log.Warn().Err(err).Str("subject", m.Subject()).Msg("invalid change event")
		return
	}

	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	handlers := append([]func(realtime.ChangeEvent){}, c.changes[ev.Table]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *channel) deliverPresence(events []realtime.PresenceEvent) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	handlers := append([]func(realtime.PresenceEvent){}, c.presence...)
	c.mu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}
