package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/discovery/internal/domain"
)

// Event types exchanged over the room websocket.
const (
	EventMessageInsert = "message.insert"
	EventMessageSend   = "message.send"
	EventSendFailed    = "message.send_failed"
	EventNotice        = "notice"
)

// Event is the JSON envelope for every websocket frame.
type Event struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message,omitempty"`
	Content string          `json:"content,omitempty"`
	Draft   string          `json:"draft,omitempty"`
	Notice  *domain.Notice  `json:"notice,omitempty"`
}

func parseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	return &ev, nil
}
