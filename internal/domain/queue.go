package domain

import "slices"

// Queue holds the per-session discovery order. It is not safe for
// concurrent use; Discovery serializes access to it.
type Queue struct {
	pool        []Listing
	displayable []Listing
	intn        IntN
}

// NewQueue returns an empty queue that shuffles with intn (nil uses the
// global random source).
func NewQueue(intn IntN) *Queue {
	return &Queue{intn: intn}
}

// Load replaces the pool and recomputes the displayable order.
func (q *Queue) Load(pool []Listing, liked IDSet, viewerID string) {
	q.pool = append([]Listing(nil), pool...)
	q.rebuild(liked, viewerID)
}

// Reload recomputes the displayable order from the pool already held,
// using the latest liked set. It never refetches.
func (q *Queue) Reload(liked IDSet, viewerID string) {
	q.rebuild(liked, viewerID)
}

func (q *Queue) rebuild(liked IDSet, viewerID string) {
	candidates := make([]Listing, 0, len(q.pool))
	for _, l := range q.pool {
		if l.OwnerID == viewerID || liked.Has(l.ID) {
			continue
		}
		candidates = append(candidates, l)
	}
	q.displayable = Shuffle(candidates, q.intn)
}

// Advance drops the head of the queue. It is a no-op when the queue is
// empty.
func (q *Queue) Advance() {
	if len(q.displayable) == 0 {
		return
	}
	q.displayable[0] = Listing{}
	q.displayable = q.displayable[1:]
}

// Consume removes listingID from the displayable order wherever it sits,
// keeping the order of the rest. A repeated call is a no-op.
func (q *Queue) Consume(listingID string) bool {
	i := slices.IndexFunc(q.displayable, func(l Listing) bool { return l.ID == listingID })
	if i < 0 {
		return false
	}
	q.displayable = slices.Delete(q.displayable, i, i+1)
	return true
}

// Current returns the listing at the head of the queue.
func (q *Queue) Current() (Listing, bool) {
	if len(q.displayable) == 0 {
		return Listing{}, false
	}
	return q.displayable[0], true
}

// Remaining returns the number of displayable listings left, including
// the current one.
func (q *Queue) Remaining() int {
	return len(q.displayable)
}

// Displayable returns a copy of the remaining order, head first.
func (q *Queue) Displayable() []Listing {
	return append([]Listing(nil), q.displayable...)
}

// Pool returns a copy of the full candidate pool.
func (q *Queue) Pool() []Listing {
	return append([]Listing(nil), q.pool...)
}

// Clear empties the queue and the pool.
func (q *Queue) Clear() {
	q.pool = nil
	q.displayable = nil
}
