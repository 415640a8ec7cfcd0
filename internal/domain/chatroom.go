package domain

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ChatRoom is a viewer's live view of one room: the loaded history plus
// every message the realtime channel delivers afterwards.
type ChatRoom struct {
	roomID   string
	viewerID string
	messages MessageRepository
	realtime RealtimeSubscriber
	logger   *slog.Logger

	mu     sync.Mutex
	list   []Message
	ids    IDSet
	sub    Subscription
	closed bool

	// OnMerge, if set, is called with every message accepted by Merge.
	OnMerge func(Message)
}

// NewChatRoom creates an unopened chat room view.
func NewChatRoom(roomID, viewerID string, messages MessageRepository, realtime RealtimeSubscriber, logger *slog.Logger) *ChatRoom {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatRoom{
		roomID:   roomID,
		viewerID: viewerID,
		messages: messages,
		realtime: realtime,
		logger:   logger.With("room_id", roomID),
		ids:      IDSet{},
	}
}

// Open subscribes to new messages and loads the room history. Messages
// delivered while history is loading are held back and merged after it,
// so nothing inserted in between is lost. A failed subscription leaves
// the history in place and reports the room offline. Opening a room that
// is already subscribed is a no-op.
func (c *ChatRoom) Open(ctx context.Context) Notice {
	if c.viewerID == "" {
		c.logger.Warn("chat open without session")
		return notice(NoticeNoSession, "Sign in to chat.")
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return notice(NoticeNone, "")
	case c.sub != nil:
		c.mu.Unlock()
		return notice(NoticeLoaded, "")
	}
	c.mu.Unlock()

	buf := &liveBuffer{merge: func(m Message) { c.Merge(m) }}
	sub, subErr := c.realtime.Subscribe(ctx, c.roomID, buf.deliver)
	if subErr != nil {
		c.logger.Warn("chat subscribe failed", "error", subErr)
	}

	history, err := c.messages.ListMessages(ctx, c.roomID)
	if err != nil {
		c.logger.Error("load chat history failed", "error", err)
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		return failure(NoticeError, "Could not load messages.", err)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	for _, m := range history {
		c.Merge(m)
	}
	buf.flush()

	if subErr != nil {
		return failure(NoticeOffline, "You're offline. New messages will not appear until you reconnect.", subErr)
	}

	c.mu.Lock()
	if c.closed || c.sub != nil {
		closed := c.closed
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		if closed {
			return notice(NoticeNone, "")
		}
		return notice(NoticeLoaded, "")
	}
	c.sub = sub
	c.mu.Unlock()
	return notice(NoticeLoaded, "")
}

// liveBuffer holds realtime deliveries until flush, then passes them
// straight through.
type liveBuffer struct {
	merge func(Message)

	mu      sync.Mutex
	live    bool
	pending []Message
}

func (b *liveBuffer) deliver(m Message) {
	b.mu.Lock()
	if !b.live {
		b.pending = append(b.pending, m)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.merge(m)
}

// flush merges held messages in arrival order and switches to pass-through.
// Deliveries racing with flush wait for it, which keeps arrival order.
func (b *liveBuffer) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.pending {
		b.merge(m)
	}
	b.pending = nil
	b.live = true
}

// Merge appends m unless a message with the same id is already present.
// It reports whether m was added.
func (c *ChatRoom) Merge(m Message) bool {
	if m.RoomID != "" && m.RoomID != c.roomID {
		return false
	}

	c.mu.Lock()
	if c.closed || c.ids.Has(m.ID) {
		c.mu.Unlock()
		return false
	}
	c.ids.Add(m.ID)
	c.list = append(c.list, m)
	hook := c.OnMerge
	c.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return true
}

// Send posts draft to the room. The local list is not changed: the message
// shows up when the realtime channel echoes it. On failure the draft is
// returned so it can be restored for a retry.
func (c *ChatRoom) Send(ctx context.Context, draft string) (string, Notice) {
	if c.viewerID == "" {
		return draft, notice(NoticeNoSession, "Sign in to chat.")
	}
	content := strings.TrimSpace(draft)
	if content == "" {
		return "", notice(NoticeNone, "")
	}

	msg := &Message{RoomID: c.roomID, SenderID: c.viewerID, Content: content}
	if err := c.messages.InsertMessage(ctx, msg); err != nil {
		c.logger.Error("send message failed", "error", err)
		if errors.Is(err, ErrRoomNotFound) {
			return draft, failure(NoticeError, "This conversation no longer exists.", err)
		}
		return draft, failure(NoticeError, "Message not sent. Please try again.", err)
	}
	return "", notice(NoticeSent, "")
}

// Messages returns a copy of the merged message list.
func (c *ChatRoom) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.list...)
}

// Len returns the number of merged messages.
func (c *ChatRoom) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

// Close unsubscribes from the realtime channel. It is safe to call more
// than once; the subscription is cancelled exactly once.
func (c *ChatRoom) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.closed = true
	c.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}
