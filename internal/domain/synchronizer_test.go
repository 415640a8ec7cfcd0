package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueConsumer adapts a bare Queue for synchronizer tests.
type queueConsumer struct {
	mu sync.Mutex
	q  *Queue
}

func (a *queueConsumer) Consume(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.q.Consume(id)
}

func (a *queueConsumer) order() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ids(a.q.Displayable())
}

func (a *queueConsumer) current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.q.Current()
	if !ok {
		return ""
	}
	return l.ID
}

func newSyncFixture(t *testing.T, liked []string, pool ...Listing) (*LikeSynchronizer, *queueConsumer, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway(pool...)
	q := NewQueue(identity)
	q.Load(pool, IDSet{}, "viewer")
	adv := &queueConsumer{q: q}

	s := NewLikeSynchronizer("viewer", gw, adv, discardLogger())
	var edges []LikeEdge
	for _, id := range liked {
		gw.seedLike("viewer", id)
		edges = append(edges, LikeEdge{ViewerID: "viewer", ListingID: id})
	}
	s.Seed(edges)
	return s, adv, gw
}

func TestLikeConfirmedAdvancesQueue(t *testing.T) {
	s, adv, gw := newSyncFixture(t, nil, listing("A", "o"), listing("B", "o"), listing("C", "o"))

	n := s.Like(context.Background(), "A")

	assert.Equal(t, NoticeLiked, n.Kind)
	assert.True(t, s.IsLiked("A"))
	assert.Equal(t, "B", adv.current())
	assert.True(t, gw.hasLike("viewer", "A"))
	assert.Equal(t, ActionIdle, s.State("A"))
}

func TestLikeConsumesCardBehindHead(t *testing.T) {
	s, adv, _ := newSyncFixture(t, nil, listing("A", "o"), listing("B", "o"), listing("C", "o"))

	n := s.Like(context.Background(), "B")

	assert.Equal(t, NoticeLiked, n.Kind)
	assert.Equal(t, []string{"A", "C"}, adv.order())
	assert.Equal(t, "A", adv.current())
}

func TestDismissConsumesCardBehindHead(t *testing.T) {
	s, adv, _ := newSyncFixture(t, nil, listing("A", "o"), listing("B", "o"), listing("C", "o"))

	assert.Equal(t, NoticeDismissed, s.Dismiss(context.Background(), "C").Kind)
	assert.Equal(t, []string{"A", "B"}, adv.order())
}

func TestLikeAlreadyLikedIsNoop(t *testing.T) {
	s, adv, gw := newSyncFixture(t, []string{"A"}, listing("A", "o"), listing("B", "o"))

	n := s.Like(context.Background(), "A")

	assert.Equal(t, NoticeAlreadyLiked, n.Kind)
	assert.False(t, n.IsError())
	assert.Equal(t, "A", adv.current())
	inserts, _ := gw.counts()
	assert.Zero(t, inserts)
}

func TestLikeTwiceWhileInFlightAdvancesOnce(t *testing.T) {
	s, adv, gw := newSyncFixture(t, nil, listing("A", "o"), listing("B", "o"), listing("C", "o"))
	gw.hold = make(chan struct{})
	gw.entered = make(chan string, 1)

	first := make(chan Notice, 1)
	go func() { first <- s.Like(context.Background(), "A") }()
	<-gw.entered

	assert.Equal(t, ActionPending, s.State("A"))
	second := s.Like(context.Background(), "A")
	assert.Equal(t, NoticeAlreadyLiked, second.Kind)
	assert.Equal(t, "B", adv.current())

	close(gw.hold)
	assert.Equal(t, NoticeLiked, (<-first).Kind)
	assert.Equal(t, "B", adv.current())
	assert.Equal(t, NewIDSet("A"), s.Liked())

	inserts, _ := gw.counts()
	assert.Equal(t, 1, inserts)
}

func TestLikeDuplicateReconcilesLocalSet(t *testing.T) {
	s, adv, gw := newSyncFixture(t, nil, listing("X", "o"), listing("Y", "o"))
	gw.seedLike("viewer", "X")

	n := s.Like(context.Background(), "X")

	assert.Equal(t, NoticeAlreadyLiked, n.Kind)
	assert.True(t, s.IsLiked("X"))
	assert.Len(t, s.Liked(), 1)
	assert.Equal(t, "Y", adv.current())
}

func TestLikeMissingListingLeavesSetUntouched(t *testing.T) {
	s, adv, gw := newSyncFixture(t, nil, listing("A", "o"), listing("B", "o"))
	gw.insertErr["A"] = fmt.Errorf("insert like: %w", ErrListingNotFound)

	n := s.Like(context.Background(), "A")

	assert.Equal(t, NoticeListingGone, n.Kind)
	assert.True(t, n.IsError())
	assert.ErrorIs(t, n.Err, ErrListingNotFound)
	assert.False(t, s.IsLiked("A"))
	assert.Equal(t, "B", adv.current())
}

func TestLikeGenericFailureLeavesSetUntouched(t *testing.T) {
	s, adv, gw := newSyncFixture(t, nil, listing("A", "o"), listing("B", "o"))
	gw.insertErr["A"] = errors.New("connection reset")

	n := s.Like(context.Background(), "A")

	assert.Equal(t, NoticeError, n.Kind)
	assert.False(t, s.IsLiked("A"))
	assert.Equal(t, "B", adv.current())

	// retry succeeds once the failure clears
	delete(gw.insertErr, "A")
	assert.Equal(t, NoticeLiked, s.Like(context.Background(), "A").Kind)
	assert.True(t, s.IsLiked("A"))
}

func TestUnlikeNotLikedSkipsRemote(t *testing.T) {
	s, _, gw := newSyncFixture(t, nil, listing("A", "o"))

	n := s.Unlike(context.Background(), "A")

	assert.Equal(t, NoticeNotLiked, n.Kind)
	_, deletes := gw.counts()
	assert.Zero(t, deletes)
}

func TestUnlikeConfirmed(t *testing.T) {
	s, adv, gw := newSyncFixture(t, []string{"A"}, listing("A", "o"), listing("B", "o"))

	n := s.Unlike(context.Background(), "A")

	assert.Equal(t, NoticeUnliked, n.Kind)
	assert.False(t, s.IsLiked("A"))
	assert.False(t, gw.hasLike("viewer", "A"))
	assert.Equal(t, "A", adv.current())
}

func TestUnlikeFailureKeepsLike(t *testing.T) {
	s, _, gw := newSyncFixture(t, []string{"A"}, listing("A", "o"))
	gw.deleteErr["A"] = errors.New("timeout")

	n := s.Unlike(context.Background(), "A")

	assert.Equal(t, NoticeError, n.Kind)
	assert.True(t, s.IsLiked("A"))
}

func TestDismissLikedAdvancesThenUnlikes(t *testing.T) {
	s, adv, gw := newSyncFixture(t, []string{"A"}, listing("A", "o"), listing("B", "o"))

	n := s.Dismiss(context.Background(), "A")

	assert.Equal(t, NoticeDismissed, n.Kind)
	assert.Equal(t, "B", adv.current())

	s.Wait()
	assert.False(t, s.IsLiked("A"))
	assert.False(t, gw.hasLike("viewer", "A"))
}

func TestDismissLikedDeleteFailureKeepsQueueAdvanced(t *testing.T) {
	s, adv, gw := newSyncFixture(t, []string{"A"}, listing("A", "o"), listing("B", "o"))
	gw.deleteErr["A"] = errors.New("offline")

	s.Dismiss(context.Background(), "A")
	s.Wait()

	assert.Equal(t, "B", adv.current())
	assert.True(t, s.IsLiked("A"))
}

func TestDismissNotLikedSkipsRemote(t *testing.T) {
	s, adv, gw := newSyncFixture(t, nil, listing("A", "o"), listing("B", "o"))

	s.Dismiss(context.Background(), "A")
	s.Wait()

	assert.Equal(t, "B", adv.current())
	_, deletes := gw.counts()
	assert.Zero(t, deletes)
}

func TestDismissSurvivesCallerCancellation(t *testing.T) {
	s, _, gw := newSyncFixture(t, []string{"A"}, listing("A", "o"))
	ctx, cancel := context.WithCancel(context.Background())

	s.Dismiss(ctx, "A")
	cancel()
	s.Wait()

	assert.False(t, gw.hasLike("viewer", "A"))
}

func TestClearDropsInFlightResult(t *testing.T) {
	s, _, gw := newSyncFixture(t, nil, listing("A", "o"))
	gw.hold = make(chan struct{})
	gw.entered = make(chan string, 1)

	done := make(chan Notice, 1)
	go func() { done <- s.Like(context.Background(), "A") }()
	<-gw.entered

	s.Clear()
	close(gw.hold)

	n := <-done
	assert.Equal(t, NoticeNoSession, n.Kind)
	assert.Empty(t, s.Liked())
}

func TestNoViewerIsNoop(t *testing.T) {
	gw := newFakeGateway(listing("A", "o"))
	s := NewLikeSynchronizer("", gw, nil, discardLogger())

	assert.Equal(t, NoticeNoSession, s.Like(context.Background(), "A").Kind)
	assert.Equal(t, NoticeNoSession, s.Unlike(context.Background(), "A").Kind)
	assert.Equal(t, NoticeNoSession, s.Dismiss(context.Background(), "A").Kind)

	inserts, deletes := gw.counts()
	assert.Zero(t, inserts)
	assert.Zero(t, deletes)
}

func TestSeedIgnoresOtherViewers(t *testing.T) {
	s := NewLikeSynchronizer("viewer", newFakeGateway(), nil, discardLogger())
	s.Seed([]LikeEdge{
		{ViewerID: "viewer", ListingID: "A"},
		{ViewerID: "someone-else", ListingID: "B"},
		{ViewerID: "viewer", ListingID: "A"},
	})
	require.Len(t, s.Liked(), 1)
	assert.True(t, s.IsLiked("A"))
}

func TestActionTransitions(t *testing.T) {
	a := newAction(ActionLike, "A")
	require.NoError(t, a.transition(ActionPending))
	assert.Error(t, a.transition(ActionPending))
	require.NoError(t, a.transition(ActionReconciledDuplicate))
	assert.True(t, a.state.Terminal())
	assert.Error(t, a.transition(ActionConfirmed))

	b := newAction(ActionUnlike, "B")
	assert.Error(t, b.transition(ActionConfirmed))
}

func TestResolveInsert(t *testing.T) {
	assert.Equal(t, ActionConfirmed, resolveInsert(nil))
	assert.Equal(t, ActionReconciledDuplicate, resolveInsert(fmt.Errorf("x: %w", ErrDuplicateLike)))
	assert.Equal(t, ActionRejected, resolveInsert(fmt.Errorf("x: %w", ErrListingNotFound)))
	assert.Equal(t, ActionRejected, resolveInsert(errors.New("boom")))
}
