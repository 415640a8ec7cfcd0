package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Consumer removes a listing's card from the discovery queue.
type Consumer interface {
	// Consume drops listingID from the queue wherever it sits.
	Consume(listingID string) bool
}

// LikeSynchronizer owns the viewer's liked-id set and keeps it consistent
// with the remote like-edges. Local state is applied on remote
// confirmation and left alone on rejection.
type LikeSynchronizer struct {
	viewerID          string
	likes             LikeRepository
	consumer          Consumer
	logger            *slog.Logger
	backgroundTimeout time.Duration

	mu         sync.Mutex
	liked      IDSet
	pending    map[string]*action
	generation uint64

	background sync.WaitGroup
}

// NewLikeSynchronizer creates a synchronizer bound to viewerID. An empty
// viewerID makes every mutation a logged no-op.
func NewLikeSynchronizer(viewerID string, likes LikeRepository, consumer Consumer, logger *slog.Logger, opts ...Option) *LikeSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &LikeSynchronizer{
		viewerID:          viewerID,
		likes:             likes,
		consumer:          consumer,
		logger:            logger,
		backgroundTimeout: o.backgroundTimeout,
		liked:             IDSet{},
		pending:           make(map[string]*action),
	}
}

// Seed replaces the liked set with the ids of edges.
func (s *LikeSynchronizer) Seed(edges []LikeEdge) {
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.ViewerID != "" && e.ViewerID != s.viewerID {
			continue
		}
		ids = append(ids, e.ListingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.liked = NewIDSet(ids...)
}

// Liked returns a snapshot of the liked set.
func (s *LikeSynchronizer) Liked() IDSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liked.Clone()
}

// IsLiked reports whether listingID is in the liked set.
func (s *LikeSynchronizer) IsLiked(listingID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liked.Has(listingID)
}

// State returns the state of the in-flight action on listingID, or
// ActionIdle if there is none.
func (s *LikeSynchronizer) State(listingID string) ActionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.pending[listingID]; ok {
		return a.state
	}
	return ActionIdle
}

// Like inserts the like-edge for listingID and consumes the card. A
// listing that is already liked, or whose like is still in flight, is
// left alone and the queue is not touched.
func (s *LikeSynchronizer) Like(ctx context.Context, listingID string) Notice {
	if s.viewerID == "" {
		s.logger.Warn("like without session", "listing_id", listingID)
		return notice(NoticeNoSession, "Sign in to like listings.")
	}

	s.mu.Lock()
	if s.liked.Has(listingID) || s.pending[listingID] != nil {
		s.mu.Unlock()
		return notice(NoticeAlreadyLiked, "You already liked this listing.")
	}
	a, gen := s.begin(ActionLike, listingID)
	s.mu.Unlock()

	if s.consumer != nil {
		s.consumer.Consume(listingID)
	}

	err := s.likes.InsertLike(ctx, s.viewerID, listingID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finish(a, gen, resolveInsert(err), err) {
		return notice(NoticeNoSession, "Session ended.")
	}

	switch a.state {
	case ActionConfirmed:
		s.liked.Add(listingID)
		return notice(NoticeLiked, "Added to your likes.")
	case ActionReconciledDuplicate:
		s.liked.Add(listingID)
		s.logger.Info("like already present remotely", "viewer_id", s.viewerID, "listing_id", listingID)
		return notice(NoticeAlreadyLiked, "You already liked this listing.")
	}

	if errors.Is(err, ErrListingNotFound) {
		s.logger.Warn("like rejected, listing gone", "viewer_id", s.viewerID, "listing_id", listingID)
		return failure(NoticeListingGone, "This listing no longer exists.", err)
	}
	s.logger.Error("like failed", "viewer_id", s.viewerID, "listing_id", listingID, "error", err)
	return failure(NoticeError, "Could not like this listing. Please try again.", err)
}

// Unlike deletes the like-edge for listingID. It never touches the
// discovery queue.
func (s *LikeSynchronizer) Unlike(ctx context.Context, listingID string) Notice {
	if s.viewerID == "" {
		s.logger.Warn("unlike without session", "listing_id", listingID)
		return notice(NoticeNoSession, "Sign in to manage your likes.")
	}

	s.mu.Lock()
	if !s.liked.Has(listingID) || s.pending[listingID] != nil {
		s.mu.Unlock()
		return notice(NoticeNotLiked, "")
	}
	a, gen := s.begin(ActionUnlike, listingID)
	s.mu.Unlock()

	err := s.likes.DeleteLike(ctx, s.viewerID, listingID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finish(a, gen, resolveDelete(err), err) {
		return notice(NoticeNoSession, "Session ended.")
	}
	if a.state == ActionConfirmed {
		s.liked.Remove(listingID)
		return notice(NoticeUnliked, "Removed from your likes.")
	}
	s.logger.Error("unlike failed", "viewer_id", s.viewerID, "listing_id", listingID, "error", err)
	return failure(NoticeError, "Could not remove this like. Please try again.", err)
}

// Dismiss consumes the card immediately. If the listing was liked, the
// like-edge is deleted in the background; a failed delete is only logged
// and the queue is not rewound.
func (s *LikeSynchronizer) Dismiss(ctx context.Context, listingID string) Notice {
	if s.viewerID == "" {
		s.logger.Warn("dismiss without session", "listing_id", listingID)
		return notice(NoticeNoSession, "Sign in to browse listings.")
	}

	if s.consumer != nil {
		s.consumer.Consume(listingID)
	}

	s.mu.Lock()
	if !s.liked.Has(listingID) || s.pending[listingID] != nil {
		s.mu.Unlock()
		return notice(NoticeDismissed, "")
	}
	a, gen := s.begin(ActionDismiss, listingID)
	s.mu.Unlock()

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.backgroundTimeout)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()

		err := s.likes.DeleteLike(bctx, s.viewerID, listingID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.finish(a, gen, resolveDelete(err), err) {
			return
		}
		if a.state != ActionConfirmed {
			s.logger.Error("background unlike after dismiss failed",
				"viewer_id", s.viewerID,
				"listing_id", listingID,
				"error", err,
			)
			return
		}
		s.liked.Remove(listingID)
	}()

	return notice(NoticeDismissed, "")
}

// Clear drops all local state. Results of actions started before Clear
// are discarded when they arrive.
func (s *LikeSynchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.liked = IDSet{}
	s.pending = make(map[string]*action)
}

// Wait blocks until background reconciliation started by Dismiss has
// finished.
func (s *LikeSynchronizer) Wait() {
	s.background.Wait()
}

// begin registers a pending action. Callers must hold s.mu.
func (s *LikeSynchronizer) begin(kind ActionKind, listingID string) (*action, uint64) {
	a := newAction(kind, listingID)
	_ = a.transition(ActionPending)
	s.pending[listingID] = a
	return a, s.generation
}

// finish moves a to its terminal state and unregisters it. It returns
// false if the session was cleared while the action was in flight, in
// which case the result must not be applied. Callers must hold s.mu.
func (s *LikeSynchronizer) finish(a *action, gen uint64, to ActionState, err error) bool {
	if terr := a.transition(to); terr != nil {
		s.logger.Error("action state", "error", terr)
	}
	a.err = err
	if gen != s.generation {
		s.logger.Info("dropping result of action from ended session",
			"action", string(a.kind),
			"listing_id", a.listingID,
			"state", a.state.String(),
		)
		return false
	}
	if s.pending[a.listingID] == a {
		delete(s.pending, a.listingID)
	}
	return true
}
