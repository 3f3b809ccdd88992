package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/fortress-ops/internal/storage"
)

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDominanceRecordAccumulates(t *testing.T) {
	d := NewDominance(testStore(t))
	ctx := context.Background()

	a, b := "[U:1:100]", "[U:1:200]"

	// From each actor's point of view the returned score is positive
	// when they lead.
	score, err := d.Record(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), score)

	score, err = d.Record(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(2), score)

	// The counterpart dominating pulls the same pair back.
	score, err = d.Record(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), score)
}

// Both orderings of a pair hit the same ledger row.
func TestDominanceSingleRowPerPair(t *testing.T) {
	store := testStore(t)
	d := NewDominance(store)
	ctx := context.Background()

	a, b := "[U:1:100]", "[U:1:200]"
	_, err := d.Record(ctx, a, b)
	require.NoError(t, err)
	_, err = d.Record(ctx, b, a)
	require.NoError(t, err)

	entries, err := store.TopDominations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].Score)
}

func TestDominanceSignFollowsCanonicalOrder(t *testing.T) {
	store := testStore(t)
	d := NewDominance(store)
	ctx := context.Background()

	// "[U:1:100]" sorts before "[U:1:200]", so a domination by the
	// lesser id is stored negative.
	_, err := d.Record(ctx, "[U:1:100]", "[U:1:200]")
	require.NoError(t, err)

	stored, err := store.GetDomination(ctx, "[U:1:100]", "[U:1:200]")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), stored)
}
