package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blackmichael/discovery/internal/domain"
)

const defaultReconnectBackoff = 5 * time.Second

// Reconnecting is a RealtimeSubscriber that keeps a room stream open,
// redialing after the connection drops. The server replays history on
// every connect, so deliver sees messages more than once; ChatRoom.Merge
// drops the repeats.
type Reconnecting struct {
	client  *Client
	backoff time.Duration
	logger  *slog.Logger
}

// NewReconnecting wraps client. A non-positive backoff uses the default.
func NewReconnecting(client *Client, backoff time.Duration, logger *slog.Logger) *Reconnecting {
	if backoff <= 0 {
		backoff = defaultReconnectBackoff
	}
	return &Reconnecting{client: client, backoff: backoff, logger: logger}
}

type reconnectingSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe makes the first connection synchronously so the caller learns
// about an unreachable server; later drops are retried until Unsubscribe.
func (r *Reconnecting) Subscribe(ctx context.Context, roomID string, deliver func(domain.Message)) (domain.Subscription, error) {
	first, err := r.client.dial(ctx, roomID, deliver)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &reconnectingSubscription{cancel: cancel, done: make(chan struct{})}
	go r.run(ctx, roomID, deliver, first, sub.done)
	return sub, nil
}

func (r *Reconnecting) run(ctx context.Context, roomID string, deliver func(domain.Message), cur *remoteSubscription, done chan struct{}) {
	defer close(done)
	logger := r.logger.With("room_id", roomID)

	for {
		select {
		case <-ctx.Done():
			_ = cur.Unsubscribe()
			return
		case <-cur.done:
		}
		_ = cur.Unsubscribe()
		logger.Warn("room stream dropped, reconnecting", "backoff", r.backoff)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff):
			}

			next, err := r.client.dial(ctx, roomID, deliver)
			if err == nil {
				cur = next
				logger.Info("room stream reconnected")
				break
			}
			logger.Error("room reconnect failed", "error", err)
		}
	}
}

// Unsubscribe stops reconnecting and closes the current stream.
func (s *reconnectingSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

var _ domain.RealtimeSubscriber = (*Reconnecting)(nil)
