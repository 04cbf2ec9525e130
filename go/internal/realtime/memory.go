package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNotSubscribed is returned when a channel is used before Subscribe or
// after Unsubscribe.
var ErrNotSubscribed = errors.New("channel not subscribed")

// MemoryHub is an in-process ChannelFactory. Delivery is synchronous on the
// caller's goroutine and never happens while the hub lock is held.
type MemoryHub struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*memoryRoom
}

type memoryRoom struct {
	members  map[*memoryChannel]bool
	presence map[string]Presence
	owners   map[string]*memoryChannel
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{rooms: make(map[uuid.UUID]*memoryRoom)}
}

// Channel implements ChannelFactory.
func (h *MemoryHub) Channel(gameID uuid.UUID) Channel {
	return &memoryChannel{
		hub:        h,
		gameID:     gameID,
		changes:    make(map[string][]func(ChangeEvent)),
		broadcasts: make(map[string][]func(BroadcastEvent)),
	}
}

// PublishChange delivers a change notification to every subscriber of the
// event's game.
func (h *MemoryHub) PublishChange(ev ChangeEvent) {
	for _, ch := range h.members(ev.GameID, nil) {
		ch.deliverChange(ev)
	}
}

// Subscribers returns the number of live subscriptions for a game.
func (h *MemoryHub) Subscribers(gameID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[gameID]; ok {
		return len(r.members)
	}
	return 0
}

func (h *MemoryHub) room(gameID uuid.UUID) *memoryRoom {
	r, ok := h.rooms[gameID]
	if !ok {
		r = &memoryRoom{
			members:  make(map[*memoryChannel]bool),
			presence: make(map[string]Presence),
			owners:   make(map[string]*memoryChannel),
		}
		h.rooms[gameID] = r
	}
	return r
}

// members snapshots the subscribers of a game, excluding skip.
func (h *MemoryHub) members(gameID uuid.UUID, skip *memoryChannel) []*memoryChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[gameID]
	if !ok {
		return nil
	}
	out := make([]*memoryChannel, 0, len(r.members))
	for ch := range r.members {
		if ch != skip {
			out = append(out, ch)
		}
	}
	return out
}

type memoryChannel struct {
	hub    *MemoryHub
	gameID uuid.UUID

	mu         sync.Mutex
	subscribed bool
	presence   []func(PresenceEvent)
	changes    map[string][]func(ChangeEvent)
	broadcasts map[string][]func(BroadcastEvent)
	trackedKey string
}

func (c *memoryChannel) OnPresence(handler func(PresenceEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, handler)
}

func (c *memoryChannel) OnChange(table string, handler func(ChangeEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes[table] = append(c.changes[table], handler)
}

func (c *memoryChannel) OnBroadcast(event string, handler func(BroadcastEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts[event] = append(c.broadcasts[event], handler)
}

func (c *memoryChannel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	r := c.hub.room(c.gameID)
	r.members[c] = true
	state := CopyState(r.presence)
	c.hub.mu.Unlock()

	c.deliverPresence(PresenceEvent{Type: PresenceSync, State: state})
	return nil
}

func (c *memoryChannel) Track(ctx context.Context, p Presence) error {
	if !c.isSubscribed() {
		return ErrNotSubscribed
	}
	if p.Key == "" {
		return fmt.Errorf("presence key is required")
	}

	c.mu.Lock()
	c.trackedKey = p.Key
	c.mu.Unlock()

	c.hub.mu.Lock()
	r := c.hub.room(c.gameID)
	r.presence[p.Key] = p
	r.owners[p.Key] = c
	state := CopyState(r.presence)
	c.hub.mu.Unlock()

	for _, ch := range c.hub.members(c.gameID, nil) {
		ch.deliverPresence(PresenceEvent{Type: PresenceJoin, Key: p.Key, Presence: p, State: state})
		ch.deliverPresence(PresenceEvent{Type: PresenceSync, State: state})
	}
	return nil
}

func (c *memoryChannel) Send(ctx context.Context, event string, payload any) error {
	if !c.isSubscribed() {
		return ErrNotSubscribed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast %s: %w", event, err)
	}
	ev := BroadcastEvent{Event: event, Payload: data}
	for _, ch := range c.hub.members(c.gameID, c) {
		ch.deliverBroadcast(ev)
	}
	return nil
}

func (c *memoryChannel) Unsubscribe() error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = false
	key := c.trackedKey
	c.trackedKey = ""
	c.mu.Unlock()

	c.hub.mu.Lock()
	r := c.hub.room(c.gameID)
	delete(r.members, c)
	left := false
	var p Presence
	if key != "" && r.owners[key] == c {
		p = r.presence[key]
		delete(r.presence, key)
		delete(r.owners, key)
		left = true
	}
	state := CopyState(r.presence)
	if len(r.members) == 0 {
		delete(c.hub.rooms, c.gameID)
	}
	c.hub.mu.Unlock()

	if left {
		for _, ch := range c.hub.members(c.gameID, nil) {
			ch.deliverPresence(PresenceEvent{Type: PresenceLeave, Key: key, Presence: p, State: state})
			ch.deliverPresence(PresenceEvent{Type: PresenceSync, State: state})
		}
	}
	return nil
}

func (c *memoryChannel) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *memoryChannel) deliverPresence(ev PresenceEvent) {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	handlers := append([]func(PresenceEvent){}, c.presence...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *memoryChannel) deliverChange(ev ChangeEvent) {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	handlers := append([]func(ChangeEvent){}, c.changes[ev.Table]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *memoryChannel) deliverBroadcast(ev BroadcastEvent) {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	handlers := append([]func(BroadcastEvent){}, c.broadcasts[ev.Event]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}
