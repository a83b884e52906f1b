package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.LedgerPut(ctx, "18630542", "1494157"))

	entry, err := store.LedgerGet(ctx, "18630542")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "18630542", entry.GoodreadsID)
	assert.Equal(t, "1494157", entry.WorkID)
	assert.True(t, entry.Resolved())
	assert.WithinDuration(t, time.Now(), entry.AttemptedAt, time.Minute)
}

func TestLedgerUnresolvedAttempt(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.LedgerPut(ctx, "404", ""))

	entry, err := store.LedgerGet(ctx, "404")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.Resolved())
	assert.Empty(t, entry.WorkID)
}

func TestLedgerPutUpdates(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.LedgerPut(ctx, "7", ""))
	require.NoError(t, store.LedgerPut(ctx, "7", "700"))

	entry, err := store.LedgerGet(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "700", entry.WorkID)
	assert.True(t, entry.Resolved())
}

func TestLedgerDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.LedgerPut(ctx, "7", "700"))
	require.NoError(t, store.LedgerDelete(ctx, "7"))

	entry, err := store.LedgerGet(ctx, "7")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// deleting an absent row is not an error
	require.NoError(t, store.LedgerDelete(ctx, "7"))
}

func TestLedgerGetMissing(t *testing.T) {
	store := testStore(t)

	entry, err := store.LedgerGet(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
