package domain

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueLoadFiltersOwnAndLiked(t *testing.T) {
	q := NewQueue(identity)
	pool := []Listing{listing("A", "v1"), listing("B", "o1"), listing("C", "o2"), listing("D", "o1")}

	q.Load(pool, NewIDSet("C"), "v1")

	assert.Equal(t, []string{"B", "D"}, ids(q.Displayable()))
	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "B", cur.ID)
	assert.Len(t, q.Pool(), 4)
}

func TestQueueEmptyPoolHasNoCurrent(t *testing.T) {
	q := NewQueue(nil)
	q.Load(nil, IDSet{}, "v1")

	_, ok := q.Current()
	assert.False(t, ok)
	assert.Zero(t, q.Remaining())
}

func TestQueueAdvanceOnEmptyIsNoop(t *testing.T) {
	q := NewQueue(nil)
	assert.NotPanics(t, func() {
		q.Advance()
		q.Advance()
	})
	_, ok := q.Current()
	assert.False(t, ok)
}

func TestQueueConsumeRemovesAnywhere(t *testing.T) {
	q := NewQueue(identity)
	q.Load([]Listing{listing("A", "o"), listing("B", "o"), listing("C", "o"), listing("D", "o")}, IDSet{}, "v")

	assert.True(t, q.Consume("C"))
	assert.Equal(t, []string{"A", "B", "D"}, ids(q.Displayable()))

	assert.True(t, q.Consume("A"))
	cur, _ := q.Current()
	assert.Equal(t, "B", cur.ID)

	assert.False(t, q.Consume("A"))
	assert.False(t, q.Consume("missing"))
	assert.Equal(t, []string{"B", "D"}, ids(q.Displayable()))
	assert.Len(t, q.Pool(), 4)
}

func TestQueueReloadRestoresDismissed(t *testing.T) {
	q := NewQueue(rand.New(rand.NewPCG(3, 4)).IntN)
	q.Load([]Listing{listing("A", "o"), listing("B", "o"), listing("C", "o"), listing("D", "o")}, IDSet{}, "v")

	for i := 0; i < 4; i++ {
		q.Advance()
	}
	_, ok := q.Current()
	require.False(t, ok)

	q.Reload(IDSet{}, "v")
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, ids(q.Displayable()))
}

func TestQueueReloadUsesLatestLikedSet(t *testing.T) {
	q := NewQueue(identity)
	q.Load([]Listing{listing("A", "o"), listing("B", "o")}, NewIDSet("A"), "v")
	assert.Equal(t, []string{"B"}, ids(q.Displayable()))

	q.Reload(NewIDSet("B"), "v")
	assert.Equal(t, []string{"A"}, ids(q.Displayable()))
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(nil)
	q.Load([]Listing{listing("A", "o")}, IDSet{}, "v")
	q.Clear()

	assert.Empty(t, q.Pool())
	assert.Zero(t, q.Remaining())
}

func TestQueueLoadProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// owners and liked flags are drawn per listing index.
	properties.Property("displayable excludes own and liked listings", prop.ForAll(
		func(owners []int, likedFlags []bool, seed uint64) bool {
			const viewer = "owner-0"
			pool := make([]Listing, len(owners))
			liked := IDSet{}
			for i, o := range owners {
				id := fmt.Sprintf("L%d", i)
				pool[i] = listing(id, fmt.Sprintf("owner-%d", o))
				if i < len(likedFlags) && likedFlags[i] {
					liked.Add(id)
				}
			}

			q := NewQueue(rand.New(rand.NewPCG(seed, 1)).IntN)
			q.Load(pool, liked, viewer)

			want := 0
			for _, l := range pool {
				if l.OwnerID != viewer && !liked.Has(l.ID) {
					want++
				}
			}
			if q.Remaining() != want {
				return false
			}
			for _, l := range q.Displayable() {
				if l.OwnerID == viewer || liked.Has(l.ID) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.Bool()),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
