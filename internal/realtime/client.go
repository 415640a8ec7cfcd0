package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/blackmichael/discovery/internal/domain"
	"github.com/gorilla/websocket"
)

// Client talks to a discovery server's chat API on behalf of one viewer.
// It implements domain.MessageRepository over HTTP and
// domain.RealtimeSubscriber over the room websocket, so a ChatRoom can run
// against a remote server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// NewClient creates a client for the server at baseURL (http or https)
// authenticating with the bearer token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// ListMessages fetches the room history.
func (c *Client) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/rooms/"+url.PathEscape(roomID)+"/messages", nil, &resp); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return resp.Messages, nil
}

// InsertMessage posts msg to its room and copies back the stored fields.
func (c *Client) InsertMessage(ctx context.Context, msg *domain.Message) error {
	body := map[string]string{"content": msg.Content}
	var resp struct {
		Message domain.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(msg.RoomID)+"/messages", body, &resp); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	*msg = resp.Message
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrRoomNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) websocketURL(roomID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/rooms/" + url.PathEscape(roomID) + "/ws"
	return u.String(), nil
}

// remoteSubscription is a websocket subscription to one room.
type remoteSubscription struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// Subscribe dials the room websocket and calls deliver for every inserted
// message the server streams, history first.
func (c *Client) Subscribe(ctx context.Context, roomID string, deliver func(domain.Message)) (domain.Subscription, error) {
	return c.dial(ctx, roomID, deliver)
}

func (c *Client) dial(ctx context.Context, roomID string, deliver func(domain.Message)) (*remoteSubscription, error) {
	wsURL, err := c.websocketURL(roomID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("dial room: %w", domain.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("dial room: %w", err)
	}

	sub := &remoteSubscription{conn: conn, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
					c.logger.Warn("room stream ended", "room_id", roomID, "error", err)
				}
				return
			}
			ev, err := parseEvent(data)
			if err != nil {
				c.logger.Error("failed to parse event", "error", err)
				continue
			}
			switch ev.Type {
			case EventMessageInsert:
				if ev.Message != nil {
					deliver(*ev.Message)
				}
			case EventNotice, EventSendFailed:
				if ev.Notice != nil {
					c.logger.Warn("room notice", "room_id", roomID, "kind", string(ev.Notice.Kind), "message", ev.Notice.Message)
				}
			}
		}
	}()
	return sub, nil
}

// Unsubscribe closes the websocket and waits for the reader to stop.
func (s *remoteSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
		<-s.done
	})
	return err
}

var (
	_ domain.MessageRepository  = (*Client)(nil)
	_ domain.RealtimeSubscriber = (*Client)(nil)
)
