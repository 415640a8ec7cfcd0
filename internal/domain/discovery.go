package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Discovery is the per-session discovery state holder. It composes the
// queue and the like synchronizer into one read/mutate surface and never
// returns sync failures as errors: every mutation resolves to a Notice.
//
// A Discovery is created once per authenticated viewer and disposed with
// Clear on logout.
type Discovery struct {
	viewerID string
	listings ListingRepository
	likes    LikeRepository
	logger   *slog.Logger

	mu     sync.Mutex
	queue  *Queue
	loaded bool
	active bool
	// generation is bumped by Clear; fetches started under an older
	// generation are discarded.
	generation uint64

	sync *LikeSynchronizer
}

// errSessionEnded reports a fetch that finished after Clear.
var errSessionEnded = errors.New("session ended during fetch")

// NewDiscovery creates the discovery state for viewerID. Nothing is fetched
// until OnSessionStart.
func NewDiscovery(viewerID string, listings ListingRepository, likes LikeRepository, logger *slog.Logger, opts ...Option) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	d := &Discovery{
		viewerID: viewerID,
		listings: listings,
		likes:    likes,
		logger:   logger.With("viewer_id", viewerID),
		queue:    NewQueue(o.intn),
	}
	d.sync = NewLikeSynchronizer(viewerID, likes, d, d.logger, opts...)
	return d
}

// ViewerID returns the account the session is bound to.
func (d *Discovery) ViewerID() string {
	return d.viewerID
}

// OnSessionStart fetches the viewer's like-edges and the listing pool and
// loads the queue.
func (d *Discovery) OnSessionStart(ctx context.Context) Notice {
	if d.viewerID == "" {
		d.logger.Warn("session start without viewer")
		return notice(NoticeNoSession, "Sign in to browse listings.")
	}
	if err := d.fetch(ctx); err != nil {
		if errors.Is(err, errSessionEnded) {
			return notice(NoticeNoSession, "Session ended.")
		}
		d.logger.Error("initial discovery fetch failed", "error", err)
		return failure(NoticeError, "Could not load listings. Please try again.", err)
	}
	return d.loadedNotice()
}

// OnViewBecameActive refetches remote state when the discovery view is
// shown again. A failed refetch keeps the state already held.
func (d *Discovery) OnViewBecameActive(ctx context.Context) Notice {
	d.mu.Lock()
	d.active = true
	d.mu.Unlock()

	if d.viewerID == "" {
		return notice(NoticeNoSession, "Sign in to browse listings.")
	}
	if err := d.fetch(ctx); err != nil {
		if errors.Is(err, errSessionEnded) {
			return notice(NoticeNoSession, "Session ended.")
		}
		d.logger.Warn("discovery refresh failed, keeping current queue", "error", err)
		return failure(NoticeError, "Could not refresh listings.", err)
	}
	return d.loadedNotice()
}

// OnViewBecameInactive marks the discovery view hidden. In-flight
// background work keeps running and reconciles the liked set.
func (d *Discovery) OnViewBecameInactive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
}

// Active reports whether the discovery view is currently shown.
func (d *Discovery) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Loaded reports whether a fetch has populated the queue since the last
// Clear.
func (d *Discovery) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Discovery) fetch(ctx context.Context) error {
	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()

	edges, err := d.likes.ListLikes(ctx, d.viewerID)
	if err != nil {
		return fmt.Errorf("list likes: %w", err)
	}
	pool, err := d.listings.ListListings(ctx)
	if err != nil {
		return fmt.Errorf("list listings: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation != gen {
		d.logger.Info("discarding discovery fetch after clear")
		return errSessionEnded
	}
	d.sync.Seed(edges)
	liked := d.sync.Liked()
	d.queue.Load(pool, liked, d.viewerID)
	d.loaded = true
	d.logger.Info("discovery loaded",
		"pool_size", len(pool),
		"liked_count", len(liked),
		"displayable", d.queue.Remaining(),
	)
	return nil
}

func (d *Discovery) loadedNotice() Notice {
	if _, ok := d.Current(); !ok {
		return notice(NoticeExhausted, "No more listings to show.")
	}
	return notice(NoticeLoaded, "")
}

// Current returns the listing currently shown, if any.
func (d *Discovery) Current() (Listing, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Current()
}

// Remaining returns the number of listings left in the queue.
func (d *Discovery) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Remaining()
}

// LikedListings returns the pool listings the viewer currently likes, in
// pool order. Each listing appears at most once.
func (d *Discovery) LikedListings() []Listing {
	liked := d.sync.Liked()

	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Listing
	seen := make(IDSet, len(liked))
	for _, l := range d.queue.pool {
		if !liked.Has(l.ID) || seen.Has(l.ID) {
			continue
		}
		seen.Add(l.ID)
		out = append(out, l)
	}
	return out
}

// LikedIDs returns a snapshot of the viewer's liked listing ids.
func (d *Discovery) LikedIDs() IDSet {
	return d.sync.Liked()
}

// Like likes listingID and consumes its card wherever it sits in the
// queue.
func (d *Discovery) Like(ctx context.Context, listingID string) Notice {
	return d.sync.Like(ctx, listingID)
}

// Unlike removes listingID from the viewer's likes.
func (d *Discovery) Unlike(ctx context.Context, listingID string) Notice {
	return d.sync.Unlike(ctx, listingID)
}

// Dismiss consumes listingID without liking it. If it was liked, the like
// is removed in the background.
func (d *Discovery) Dismiss(ctx context.Context, listingID string) Notice {
	if _, ok := d.Current(); !ok {
		return notice(NoticeExhausted, "No more listings to show.")
	}
	return d.sync.Dismiss(ctx, listingID)
}

// Reload rebuilds the queue from the pool already held, using the latest
// liked set. Nothing is refetched.
func (d *Discovery) Reload() Notice {
	liked := d.sync.Liked()

	d.mu.Lock()
	d.queue.Reload(liked, d.viewerID)
	d.mu.Unlock()

	return d.loadedNotice()
}

// Consume implements Consumer for the synchronizer.
func (d *Discovery) Consume(listingID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Consume(listingID)
}

// Clear drops all session state. In-flight results, fetches included, are
// discarded.
func (d *Discovery) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.sync.Clear()
	d.queue.Clear()
	d.loaded = false
	d.active = false
}

// Wait blocks until background reconciliation has finished.
func (d *Discovery) Wait() {
	d.sync.Wait()
}
