package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/blackmichael/discovery/internal/domain"
)

type discoveryResponse struct {
	Notice    *domain.Notice  `json:"notice,omitempty"`
	Listing   *domain.Listing `json:"listing"`
	Remaining int             `json:"remaining"`
}

// noticeStatus maps an action outcome to an HTTP status. Expected races
// are successes; only referential and remote failures are errors.
func noticeStatus(n domain.Notice) int {
	switch n.Kind {
	case domain.NoticeListingGone:
		return http.StatusGone
	case domain.NoticeError:
		return http.StatusBadGateway
	case domain.NoticeNoSession:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

// discovery looks up the caller's session. When there is none it writes a
// no_session notice and returns false.
func (s *Server) discovery(w http.ResponseWriter, r *http.Request) (*domain.Discovery, bool) {
	viewerID := viewerFrom(r.Context())
	d, err := s.svc.Sessions.Get(viewerID)
	if err != nil {
		s.logger.Info("discovery request without session", "viewer_id", viewerID, "path", r.URL.Path)
		n := domain.Notice{Kind: domain.NoticeNoSession, Message: "Start a session first."}
		writeJSON(w, noticeStatus(n), discoveryResponse{Notice: &n})
		return nil, false
	}
	return d, true
}

func (s *Server) writeDiscovery(w http.ResponseWriter, d *domain.Discovery, n domain.Notice) {
	resp := discoveryResponse{Remaining: d.Remaining()}
	if n.Kind != domain.NoticeNone {
		resp.Notice = &n
	}
	if l, ok := d.Current(); ok {
		resp.Listing = &l
	}
	writeJSON(w, noticeStatus(n), resp)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	d, n := s.svc.Sessions.Start(r.Context(), viewerFrom(r.Context()), tokenFrom(r.Context()))
	s.writeDiscovery(w, d, n)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	s.svc.Sessions.End(viewerFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	d, ok := s.discovery(w, r)
	if !ok {
		return
	}
	s.writeDiscovery(w, d, domain.Notice{})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	d, ok := s.discovery(w, r)
	if !ok {
		return
	}
	s.writeDiscovery(w, d, d.Reload())
}

type visibilityRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	d, ok := s.discovery(w, r)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be {\"active\": bool}")
		return
	}

	if !req.Active {
		d.OnViewBecameInactive()
		s.writeDiscovery(w, d, domain.Notice{})
		return
	}
	s.writeDiscovery(w, d, d.OnViewBecameActive(r.Context()))
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	d, ok := s.discovery(w, r)
	if !ok {
		return
	}
	s.writeDiscovery(w, d, d.Like(r.Context(), r.PathValue("listingID")))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	d, ok := s.discovery(w, r)
	if !ok {
		return
	}
	s.writeDiscovery(w, d, d.Dismiss(r.Context(), r.PathValue("listingID")))
}

type likesResponse struct {
	Notice   *domain.Notice   `json:"notice,omitempty"`
	IDs      []string         `json:"ids"`
	Listings []domain.Listing `json:"listings"`
}

func (s *Server) writeLikes(w http.ResponseWriter, d *domain.Discovery, n domain.Notice) {
	resp := likesResponse{
		IDs:      d.LikedIDs().Sorted(),
		Listings: d.LikedListings(),
	}
	if resp.Listings == nil {
		resp.Listings = []domain.Listing{}
	}
	if n.Kind != domain.NoticeNone {
		resp.Notice = &n
	}
	writeJSON(w, noticeStatus(n), resp)
}

func (s *Server) handleListLikes(w http.ResponseWriter, r *http.Request) {
	d, ok := s.discovery(w, r)
	if !ok {
		return
	}
	s.writeLikes(w, d, domain.Notice{})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	d, ok := s.discovery(w, r)
	if !ok {
		return
	}
	s.writeLikes(w, d, d.Unlike(r.Context(), r.PathValue("listingID")))
}
