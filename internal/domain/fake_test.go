package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listing(id, owner string) Listing {
	return Listing{ID: id, OwnerID: owner, Name: "Listing " + id, Status: ListingStatusActive}
}

// fakeGateway is an in-memory remote gateway. Errors can be injected per
// listing id, and inserts can be held open to simulate latency.
type fakeGateway struct {
	mu        sync.Mutex
	listings  []Listing
	edges     map[string]IDSet
	insertErr map[string]error
	deleteErr map[string]error
	listErr   error
	inserts   int
	deletes   int

	// hold, when non-nil, blocks InsertLike until it is closed.
	hold chan struct{}
	// entered is signalled when InsertLike starts, if non-nil.
	entered chan string
	// listHold, when non-nil, blocks ListListings until it is closed, and
	// listEntered is signalled when ListListings starts.
	listHold    chan struct{}
	listEntered chan struct{}
}

func newFakeGateway(listings ...Listing) *fakeGateway {
	return &fakeGateway{
		listings:  listings,
		edges:     make(map[string]IDSet),
		insertErr: make(map[string]error),
		deleteErr: make(map[string]error),
	}
}

func (g *fakeGateway) ListListings(ctx context.Context) ([]Listing, error) {
	if g.listEntered != nil {
		g.listEntered <- struct{}{}
	}
	if g.listHold != nil {
		select {
		case <-g.listHold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]Listing(nil), g.listings...), nil
}

func (g *fakeGateway) ListLikes(_ context.Context, viewerID string) ([]LikeEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []LikeEdge
	for _, id := range g.edges[viewerID].Sorted() {
		out = append(out, LikeEdge{ViewerID: viewerID, ListingID: id, CreatedAt: time.Now()})
	}
	return out, nil
}

func (g *fakeGateway) InsertLike(ctx context.Context, viewerID, listingID string) error {
	if g.entered != nil {
		g.entered <- listingID
	}
	if g.hold != nil {
		select {
		case <-g.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inserts++
	if err := g.insertErr[listingID]; err != nil {
		return err
	}
	if g.edges[viewerID] == nil {
		g.edges[viewerID] = IDSet{}
	}
	if g.edges[viewerID].Has(listingID) {
		return fmt.Errorf("insert like: %w", ErrDuplicateLike)
	}
	g.edges[viewerID].Add(listingID)
	return nil
}

func (g *fakeGateway) DeleteLike(_ context.Context, viewerID, listingID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes++
	if err := g.deleteErr[listingID]; err != nil {
		return err
	}
	g.edges[viewerID].Remove(listingID)
	return nil
}

func (g *fakeGateway) seedLike(viewerID, listingID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[viewerID] == nil {
		g.edges[viewerID] = IDSet{}
	}
	g.edges[viewerID].Add(listingID)
}

func (g *fakeGateway) hasLike(viewerID, listingID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[viewerID].Has(listingID)
}

func (g *fakeGateway) counts() (inserts, deletes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inserts, g.deletes
}

// identity never swaps, so shuffled order equals input order.
func identity(n int) int { return n - 1 }

func ids(listings []Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}
