package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/blackmichael/discovery/internal/domain"
)

const maxMessageBytes = 8 << 10

type roomView struct {
	domain.Room
	PeerID string `json:"peer_id"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	viewerID := viewerFrom(r.Context())
	rooms, err := s.svc.Rooms.ListRooms(r.Context(), viewerID)
	if err != nil {
		s.logger.Error("failed to list rooms", "viewer_id", viewerID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list connections")
		return
	}

	views := make([]roomView, len(rooms))
	for i, room := range rooms {
		views[i] = roomView{Room: room, PeerID: room.Peer(viewerID)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": views})
}

// room loads the room named in the path and checks the caller is a member.
// Non-members get the same 404 as a missing room.
func (s *Server) room(w http.ResponseWriter, r *http.Request) (domain.Room, bool) {
	viewerID := viewerFrom(r.Context())
	roomID := r.PathValue("roomID")

	room, err := s.svc.Rooms.GetRoom(r.Context(), roomID)
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		s.logger.Error("failed to load room", "room_id", roomID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load room")
		return domain.Room{}, false
	}
	if err != nil || !room.HasMember(viewerID) {
		writeError(w, http.StatusNotFound, "NotFound", "room not found")
		return domain.Room{}, false
	}
	return room, true
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	room, ok := s.room(w, r)
	if !ok {
		return
	}

	msgs, err := s.svc.Messages.ListMessages(r.Context(), room.ID)
	if err != nil {
		s.logger.Error("failed to list messages", "room_id", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	room, ok := s.room(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be {\"content\": string}")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "content is required")
		return
	}

	msg := domain.Message{
		RoomID:   room.ID,
		SenderID: viewerFrom(r.Context()),
		Content:  req.Content,
	}
	if err := s.svc.Messages.InsertMessage(r.Context(), &msg); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "NotFound", "room not found")
			return
		}
		s.logger.Error("failed to send message", "room_id", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (s *Server) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	room, ok := s.room(w, r)
	if !ok {
		return
	}
	s.svc.Chat.ServeRoom(w, r, room.ID, viewerFrom(r.Context()))
}
