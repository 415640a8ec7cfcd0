package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackmichael/discovery/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRoomServer replays the same history on every connection, adds one
// new message per connection, and then drops the socket.
func flakyRoomServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)

		history := []domain.Message{{ID: "m0", RoomID: "room", Content: "first"}}
		for i := int32(1); i < n; i++ {
			history = append(history, domain.Message{ID: "m" + string(rune('0'+i)), RoomID: "room"})
		}
		history = append(history, domain.Message{ID: "m" + string(rune('0'+n)), RoomID: "room"})
		for _, m := range history {
			_ = conn.WriteJSON(Event{Type: EventMessageInsert, Message: &m})
		}

		if n < 3 {
			conn.Close()
			return
		}
		// Stay open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestReconnectingRedialsAndRoomDedups(t *testing.T) {
	srv, conns := flakyRoomServer(t)
	client := NewClient(srv.URL, "token", discardLogger())
	sub := NewReconnecting(client, 10*time.Millisecond, discardLogger())

	room := domain.NewChatRoom("room", "viewer", &memoryMessages{}, sub, discardLogger())
	require.Equal(t, domain.NoticeLoaded, room.Open(context.Background()).Kind)

	require.Eventually(t, func() bool { return room.Len() == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(3), conns.Load())

	var ids []string
	for _, m := range room.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, ids)

	require.NoError(t, room.Close())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), conns.Load(), "no redial after unsubscribe")
}

func TestReconnectingInitialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	sub := NewReconnecting(NewClient(srv.URL, "token", discardLogger()), time.Millisecond, discardLogger())
	_, err := sub.Subscribe(context.Background(), "room", func(domain.Message) {})
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestReconnectingUnsubscribeIsIdempotent(t *testing.T) {
	srv, _ := flakyRoomServer(t)
	sub := NewReconnecting(NewClient(srv.URL, "token", discardLogger()), time.Hour, discardLogger())

	s, err := sub.Subscribe(context.Background(), "room", func(domain.Message) {})
	require.NoError(t, err)
	require.NoError(t, s.Unsubscribe())
	require.NoError(t, s.Unsubscribe())
}
