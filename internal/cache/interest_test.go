package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

func newInterestCache(t *testing.T) (*cache.InterestCache, *repository.MockStore) {
	t.Helper()
	store := repository.NewMockStore()
	return cache.NewInterestCache(store, zap.NewNop()), store
}

func ids(subs []domain.Subscription) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}

func TestInterestCache_InitializeGroupsByProduct(t *testing.T) {
	c, store := newInterestCache(t)
	a1 := store.SeedSubscription("A", "a1@example.com")
	a2 := store.SeedSubscription("A", "a2@example.com")
	b1 := store.SeedSubscription("B", "b1@example.com")

	require.NoError(t, c.Initialize(context.Background()))

	assert.Equal(t, []string{a1.ID, a2.ID}, ids(c.Lookup("A")))
	assert.Equal(t, []string{b1.ID}, ids(c.Lookup("B")))
	assert.True(t, c.Has("A"))
	assert.False(t, c.Has("C"))
	assert.Empty(t, c.Lookup("C"))
}

func TestInterestCache_ConcurrentInitializeLoadsOnce(t *testing.T) {
	c, store := newInterestCache(t)
	store.SeedSubscription("A", "a1@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Initialize(context.Background())
		}()
	}
	wg.Wait()
	require.NoError(t, c.Initialize(context.Background()))

	assert.Equal(t, 1, store.ListAllPendingCalls())
	assert.True(t, c.Initialized())
}

func TestInterestCache_LookupNeverHitsStore(t *testing.T) {
	c, store := newInterestCache(t)
	store.SeedSubscription("A", "a1@example.com")
	require.NoError(t, c.Initialize(context.Background()))

	before := store.ListAllPendingCalls() + store.ListPendingCalls()
	for i := 0; i < 10; i++ {
		c.Lookup("A")
		c.Lookup("unknown")
		c.Has("A")
	}
	assert.Equal(t, before, store.ListAllPendingCalls()+store.ListPendingCalls())
}

func TestInterestCache_RemoveIsIdempotent(t *testing.T) {
	c, store := newInterestCache(t)
	s := store.SeedSubscription("A", "a1@example.com")
	require.NoError(t, c.Initialize(context.Background()))

	assert.True(t, c.Remove(s.ID, "A"))
	assert.False(t, c.Remove(s.ID, "A"))
	assert.False(t, c.Remove(s.ID, ""))
	assert.False(t, c.Has("A"))
}

func TestInterestCache_RemoveWithoutHintScans(t *testing.T) {
	c, store := newInterestCache(t)
	store.SeedSubscription("A", "a1@example.com")
	b := store.SeedSubscription("B", "b1@example.com")
	require.NoError(t, c.Initialize(context.Background()))

	assert.True(t, c.Remove(b.ID, ""))
	assert.False(t, c.Has("B"))
	assert.True(t, c.Has("A"))
}

func TestInterestCache_AddIgnoresDuplicatesAndDelivered(t *testing.T) {
	c, _ := newInterestCache(t)
	s := domain.Subscription{ID: "s1", ProductID: "A", Email: "a@example.com"}

	c.Add(s)
	c.Add(s)
	c.Add(domain.Subscription{ID: "s2", ProductID: "A", Email: "b@example.com", Delivered: true})

	assert.Equal(t, []string{"s1"}, ids(c.Lookup("A")))
	products, subs := c.Size()
	assert.Equal(t, 1, products)
	assert.Equal(t, 1, subs)
}

func TestInterestCache_FailedLoadKeepsPreviousState(t *testing.T) {
	c, store := newInterestCache(t)
	s := store.SeedSubscription("A", "a1@example.com")
	require.NoError(t, c.Initialize(context.Background()))

	store.ListAllPendingErr = errors.New("connection reset")
	err := c.RefreshAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{s.ID}, ids(c.Lookup("A")))

	store.ListPendingErr = errors.New("connection reset")
	require.Error(t, c.RefreshProduct(context.Background(), "A"))
	assert.Equal(t, []string{s.ID}, ids(c.Lookup("A")))
}

func TestInterestCache_FailedInitializeCanBeRetried(t *testing.T) {
	c, store := newInterestCache(t)
	store.SeedSubscription("A", "a1@example.com")

	store.ListAllPendingErr = errors.New("db down")
	require.Error(t, c.Initialize(context.Background()))
	assert.False(t, c.Initialized())

	store.ListAllPendingErr = nil
	require.NoError(t, c.Initialize(context.Background()))
	assert.True(t, c.Has("A"))
}

func TestInterestCache_RefreshAllMatchesStore(t *testing.T) {
	c, store := newInterestCache(t)
	ctx := context.Background()
	store.SeedSubscription("A", "a1@example.com")
	stale := store.SeedSubscription("B", "b1@example.com")
	require.NoError(t, c.Initialize(ctx))

	// Drift: the store changes behind the cache's back.
	require.NoError(t, store.MarkDelivered(ctx, stale.ID, stale.CreatedAt))
	store.SeedSubscription("C", "c1@example.com")
	c.Add(domain.Subscription{ID: "ghost", ProductID: "D", Email: "d@example.com"})

	require.NoError(t, c.RefreshAll(ctx))

	for _, product := range []string{"A", "B", "C", "D"} {
		want, err := store.ListPending(ctx, product)
		require.NoError(t, err)
		got := c.Lookup(product)
		require.Len(t, got, len(want), "product %s", product)
		for i := range want {
			assert.Equal(t, want[i].ID, got[i].ID)
		}
	}
}

func TestInterestCache_RefreshProduct(t *testing.T) {
	c, store := newInterestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	s := store.SeedSubscription("A", "a1@example.com")
	assert.False(t, c.Has("A"))

	require.NoError(t, c.RefreshProduct(ctx, "A"))
	assert.Equal(t, []string{s.ID}, ids(c.Lookup("A")))

	require.NoError(t, store.MarkDelivered(ctx, s.ID, s.CreatedAt))
	require.NoError(t, c.RefreshProduct(ctx, "A"))
	assert.False(t, c.Has("A"))
}

// pausingStore holds the first ListAllPending after it has read the store
// until release is closed.
type pausingStore struct {
	*repository.MockStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{
		MockStore: repository.NewMockStore(),
		read:      make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (p *pausingStore) ListAllPending(ctx context.Context) ([]*domain.Subscription, error) {
	subs, err := p.MockStore.ListAllPending(ctx)
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.read)
		<-p.release
	}
	return subs, err
}

func TestInterestCache_RefreshAllAfterWriteSeesWrite(t *testing.T) {
	store := newPausingStore()
	c := cache.NewInterestCache(store, zap.NewNop())
	ctx := context.Background()
	store.SeedSubscription("A", "a1@example.com")

	done := make(chan error, 1)
	go func() { done <- c.RefreshAll(ctx) }()
	<-store.read

	// Written after the first refresh read the store.
	late := store.SeedSubscription("A", "a2@example.com")
	require.NoError(t, c.RefreshAll(ctx))

	_, subs := c.Size()
	assert.Equal(t, 2, subs)
	assert.Contains(t, ids(c.Lookup("A")), late.ID)

	close(store.release)
	require.NoError(t, <-done)

	_, subs = c.Size()
	assert.Equal(t, 2, subs, "an older load must not overwrite a newer one")
}
