package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

func enqueueN(t *testing.T, store *repository.MockStore, n int) []*domain.QueueItem {
	t.Helper()
	ctx := context.Background()
	items := make([]*domain.QueueItem, 0, n)
	for i := 0; i < n; i++ {
		sub := store.SeedSubscription("prod-1", fmt.Sprintf("user%d@example.com", i))
		item, err := store.Enqueue(ctx, sub, domain.DefaultMaxAttempts)
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func TestMockStore_ClaimBatch_NoDoubleClaim(t *testing.T) {
	store := repository.NewMockStore()
	enqueueN(t, store, 100)

	const claimers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[string]int)
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := store.ClaimBatch(context.Background(), 7)
				if err != nil || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, item := range batch {
					claimed[item.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 100)
	for id, n := range claimed {
		assert.Equalf(t, 1, n, "item %s claimed %d times", id, n)
	}
}

func TestMockStore_ClaimBatch_FIFOAndIncrementsAttempts(t *testing.T) {
	store := repository.NewMockStore()
	items := enqueueN(t, store, 3)

	batch, err := store.ClaimBatch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, items[0].ID, batch[0].ID)
	assert.Equal(t, items[1].ID, batch[1].ID)
	for _, item := range batch {
		assert.Equal(t, domain.StatusProcessing, item.Status)
		assert.Equal(t, 1, item.Attempts)
		assert.NotNil(t, item.ProcessedAt)
	}
}

func TestMockStore_MarkSentPropagatesDelivered(t *testing.T) {
	store := repository.NewMockStore()
	ctx := context.Background()
	items := enqueueN(t, store, 1)

	// Not claimed yet: pending -> sent is not a legal transition.
	require.ErrorIs(t, store.MarkSent(ctx, items[0].ID, time.Now()), domain.ErrInvalidTransition)

	_, err := store.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.MarkSent(ctx, items[0].ID, time.Now()))

	sub, err := store.GetByID(ctx, items[0].SubscriptionID)
	require.NoError(t, err)
	assert.True(t, sub.Delivered)
	assert.NotNil(t, sub.DeliveredAt)
}

func TestMockStore_AttemptBound(t *testing.T) {
	store := repository.NewMockStore()
	ctx := context.Background()
	items := enqueueN(t, store, 1)

	for attempt := 1; attempt <= domain.DefaultMaxAttempts+2; attempt++ {
		_, err := store.RequeueFailed(ctx)
		require.NoError(t, err)
		batch, err := store.ClaimBatch(ctx, 10)
		require.NoError(t, err)
		for _, item := range batch {
			require.NoError(t, store.MarkFailed(ctx, item.ID, "smtp timeout"))
		}
	}

	item, err := store.GetItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, item.Status)
	assert.Equal(t, domain.DefaultMaxAttempts, item.Attempts)
	assert.True(t, item.Exhausted())
}

func TestMockStore_RetryFailed(t *testing.T) {
	store := repository.NewMockStore()
	ctx := context.Background()
	items := enqueueN(t, store, 2)

	store.SetItemState(items[0].ID, domain.StatusFailed, 1)
	store.SetItemState(items[1].ID, domain.StatusFailed, domain.DefaultMaxAttempts)

	n, err := store.RetryFailed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.RetryFailed(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, item := range store.Items() {
		assert.Equal(t, domain.StatusPending, item.Status)
		assert.Zero(t, item.Attempts)
		assert.Nil(t, item.LastError)
	}
}

func TestMockStore_ExpireStale(t *testing.T) {
	store := repository.NewMockStore()
	ctx := context.Background()
	items := enqueueN(t, store, 2)

	_, err := store.ClaimBatch(ctx, 2)
	require.NoError(t, err)
	store.BackdateProcessing(items[0].ID, time.Hour)

	n, err := store.ExpireStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stale, _ := store.GetItem(ctx, items[0].ID)
	fresh, _ := store.GetItem(ctx, items[1].ID)
	assert.Equal(t, domain.StatusFailed, stale.Status)
	assert.Equal(t, domain.StatusProcessing, fresh.Status)
}

func TestMockStore_ClearFailedAndSummary(t *testing.T) {
	store := repository.NewMockStore()
	ctx := context.Background()
	items := enqueueN(t, store, 3)
	store.SetItemState(items[2].ID, domain.StatusFailed, 3)

	summary, err := store.StatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSummary{Pending: 2, Failed: 1, Total: 3}, summary)

	n, err := store.ClearFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	summary, _ = store.StatusSummary(ctx)
	assert.Equal(t, 2, summary.Total)
}

func TestMockStore_InsertConflict(t *testing.T) {
	store := repository.NewMockStore()
	store.SeedSubscription("prod-1", "ana@example.com")

	err := store.Insert(context.Background(), &domain.Subscription{
		ID: "dup", ProductID: "prod-1", Email: "ANA@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestMockStore_ListPaginates(t *testing.T) {
	store := repository.NewMockStore()
	enqueueN(t, store, 5)

	page, total, err := store.List(context.Background(), domain.QueueFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

func TestMockStore_EnqueueRejectsSecondOpenItem(t *testing.T) {
	store := repository.NewMockStore()
	ctx := context.Background()
	sub := store.SeedSubscription("prod-1", "ana@example.com")

	first, err := store.Enqueue(ctx, sub, 3)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, sub, 3)
	require.ErrorIs(t, err, domain.ErrConflict)

	// Once the open item is resolved a new one may be queued.
	store.SetItemState(first.ID, domain.StatusFailed, 1)
	_, err = store.Enqueue(ctx, sub, 3)
	require.NoError(t, err)
}

func TestMockStore_RetryRearmsOneItemPerSubscription(t *testing.T) {
	store := repository.NewMockStore()
	ctx := context.Background()
	sub := store.SeedSubscription("prod-1", "ana@example.com")

	a, err := store.Enqueue(ctx, sub, 3)
	require.NoError(t, err)
	store.SetItemState(a.ID, domain.StatusFailed, 1)
	b, err := store.Enqueue(ctx, sub, 3)
	require.NoError(t, err)
	store.SetItemState(b.ID, domain.StatusFailed, 1)

	n, err := store.RetryFailed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err := store.HasOpenItem(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, open)
	summary, err := store.StatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Failed)
}
