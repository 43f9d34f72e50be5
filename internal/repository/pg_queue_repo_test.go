package repository_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/db"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

// These tests run the real SQL against PostgreSQL. Point TEST_DATABASE_URL
// at a disposable database to enable them; its restock tables are wiped.
func pgTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, db.Migrate("file://../../migrations", url))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE notification_queue, stock_subscriptions`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM products WHERE id LIKE 'it-%'`)
	require.NoError(t, err)
	return pool
}

type pgFixture struct {
	pool  *pgxpool.Pool
	subs  repository.SubscriptionRepository
	queue repository.QueueRepository
	base  time.Time
	n     int
}

func newPgFixture(t *testing.T) *pgFixture {
	pool := pgTestPool(t)
	return &pgFixture{
		pool:  pool,
		subs:  repository.NewPgSubscriptionRepository(pool),
		queue: repository.NewPgQueueRepository(pool),
		base:  time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond),
	}
}

func (f *pgFixture) subscribe(t *testing.T, productID string) *domain.Subscription {
	t.Helper()
	f.n++
	s := &domain.Subscription{
		ID:        uuid.New().String(),
		ProductID: productID,
		Email:     fmt.Sprintf("user%d@example.com", f.n),
		CreatedAt: f.base.Add(time.Duration(f.n) * time.Millisecond),
	}
	require.NoError(t, f.subs.Insert(context.Background(), s))
	return s
}

func (f *pgFixture) enqueue(t *testing.T, s *domain.Subscription) *domain.QueueItem {
	t.Helper()
	item, err := f.queue.Enqueue(context.Background(), s, 3)
	require.NoError(t, err)
	return item
}

func TestPgQueue_ConcurrentClaimsAreDisjoint(t *testing.T) {
	f := newPgFixture(t)
	const total = 60
	for i := 0; i < total; i++ {
		f.enqueue(t, f.subscribe(t, "it-prod"))
	}

	const claimers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[string]int)
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				batch, err := f.queue.ClaimBatch(context.Background(), 7)
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				}
				for _, item := range batch {
					claimed[item.ID]++
				}
				mu.Unlock()
				if err != nil || len(batch) == 0 {
					return
				}
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "item %s claimed %d times", id, n)
	}

	summary, err := f.queue.StatusSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, summary.Processing)
}

func TestPgQueue_ClaimIsOldestFirstAndBounded(t *testing.T) {
	f := newPgFixture(t)
	var want []string
	for i := 0; i < 5; i++ {
		want = append(want, f.enqueue(t, f.subscribe(t, "it-prod")).ID)
		time.Sleep(2 * time.Millisecond)
	}

	batch, err := f.queue.ClaimBatch(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, item := range batch {
		assert.Equal(t, want[i], item.ID)
		assert.Equal(t, domain.StatusProcessing, item.Status)
		assert.Equal(t, 1, item.Attempts)
	}
}

func TestPgQueue_MarkSentDeliversSubscription(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, "it-prod")
	item := f.enqueue(t, sub)

	require.ErrorIs(t, f.queue.MarkSent(ctx, item.ID, time.Now().UTC()), domain.ErrInvalidTransition,
		"pending items cannot be marked sent")

	_, err := f.queue.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkSent(ctx, item.ID, time.Now().UTC()))

	got, err := f.queue.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.NotNil(t, got.SentAt)

	stored, err := f.subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delivered)
	assert.NotNil(t, stored.DeliveredAt)

	require.ErrorIs(t, f.queue.MarkSent(ctx, item.ID, time.Now().UTC()), domain.ErrInvalidTransition)
}

func TestPgQueue_RequeueAndRetry(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	item := f.enqueue(t, f.subscribe(t, "it-prod"))

	_, err := f.queue.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkFailed(ctx, item.ID, "smtp 451"))

	n, err := f.queue.RequeueFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, _ := f.queue.GetItem(ctx, item.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts, "automatic requeue keeps the attempt count")

	_, err = f.pool.Exec(ctx,
		`UPDATE notification_queue SET status = 'failed', attempts = max_attempts WHERE id = $1`, item.ID)
	require.NoError(t, err)

	n, err = f.queue.RequeueFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "exhausted items are not requeued automatically")
	n, err = f.queue.RetryFailed(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.queue.RetryFailed(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, _ = f.queue.GetItem(ctx, item.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Nil(t, got.LastError)
}

func TestPgQueue_OneOpenItemPerSubscription(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, "it-prod")

	first := f.enqueue(t, sub)
	_, err := f.queue.Enqueue(ctx, sub, 3)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.queue.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkFailed(ctx, first.ID, "boom"))

	second := f.enqueue(t, sub)
	_, err = f.queue.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkFailed(ctx, second.ID, "boom"))

	// Two failed items for one subscription: only one may be re-armed.
	n, err := f.queue.RetryFailed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.queue.RequeueFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPgQueue_ExpireStale(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	item := f.enqueue(t, f.subscribe(t, "it-prod"))
	_, err := f.queue.ClaimBatch(ctx, 1)
	require.NoError(t, err)

	n, err := f.queue.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.pool.Exec(ctx,
		`UPDATE notification_queue SET processed_at = NOW() - INTERVAL '2 hours' WHERE id = $1`, item.ID)
	require.NoError(t, err)
	n, err = f.queue.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := f.queue.GetItem(ctx, item.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func TestPgProduct_PriceIsExactCents(t *testing.T) {
	pool := pgTestPool(t)
	ctx := context.Background()
	_, err := pool.Exec(ctx,
		`INSERT INTO products (id, name, price) VALUES ('it-pan', 'Cast Iron Pan', 19.99)`)
	require.NoError(t, err)

	p, err := repository.NewPgProductRepository(pool).GetProductDetails(ctx, "it-pan")
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(1999), p.PriceCents)
	assert.Empty(t, p.ImageURL)

	_, err = repository.NewPgProductRepository(pool).GetProductDetails(ctx, "it-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
