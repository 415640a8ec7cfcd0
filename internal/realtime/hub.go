// Package realtime fans out newly inserted chat messages to subscribers,
// in process and over websockets.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/blackmichael/discovery/internal/domain"
)

// Hub delivers every published message to the subscribers of its room.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[*subscription]struct{}),
	}
}

type subscription struct {
	hub     *Hub
	roomID  string
	deliver func(domain.Message)
	stop    func() bool
	once    sync.Once
}

// Subscribe registers deliver for roomID. The subscription ends when
// Unsubscribe is called or ctx is done, whichever comes first.
func (h *Hub) Subscribe(ctx context.Context, roomID string, deliver func(domain.Message)) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{hub: h, roomID: roomID, deliver: deliver}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*subscription]struct{})
	}
	h.rooms[roomID][sub] = struct{}{}
	h.mu.Unlock()

	sub.stop = context.AfterFunc(ctx, func() {
		sub.once.Do(func() { h.remove(sub) })
	})
	return sub, nil
}

// Unsubscribe removes the subscription from its hub. Only the first call
// has an effect.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.hub.remove(s)
	})
	return nil
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.roomID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.roomID)
	}
}

// Publish delivers msg to every current subscriber of msg.RoomID.
func (h *Hub) Publish(msg domain.Message) {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.rooms[msg.RoomID]))
	for sub := range h.rooms[msg.RoomID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(msg)
	}
	h.logger.Debug("message published", "room_id", msg.RoomID, "message_id", msg.ID, "subscribers", len(subs))
}

// Subscribers returns the number of live subscriptions on roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// PublishingStore decorates a MessageRepository so that every successful
// insert is published on the hub.
type PublishingStore struct {
	domain.MessageRepository
	Hub *Hub
}

// InsertMessage stores msg and then publishes it.
func (p *PublishingStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if err := p.MessageRepository.InsertMessage(ctx, msg); err != nil {
		return err
	}
	p.Hub.Publish(*msg)
	return nil
}

var _ domain.RealtimeSubscriber = (*Hub)(nil)
