package repository

import (
	"context"
	"time"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

// SubscriptionRepository is the narrow view of the subscription store.
// The pgx implementation is in pg_subscription_repo.go.
// Tests use the in-memory MockStore (mock_store.go).
type SubscriptionRepository interface {
	Insert(ctx context.Context, s *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	Delete(ctx context.Context, id string) error
	ListPending(ctx context.Context, productID string) ([]*domain.Subscription, error)
	ListAllPending(ctx context.Context) ([]*domain.Subscription, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

// ProductRepository reads product details owned by the catalog.
type ProductRepository interface {
	GetProductDetails(ctx context.Context, productID string) (*domain.ProductDetails, error)
}

// QueueRepository persists the delivery queue and its state machine.
//
// ClaimBatch is the only way an item enters processing; implementations
// must guarantee an item is never returned by two concurrent claims.
// MarkSent and MarkFailed only apply to items in processing and return
// domain.ErrInvalidTransition otherwise.
type QueueRepository interface {
	Enqueue(ctx context.Context, s *domain.Subscription, maxAttempts int) (*domain.QueueItem, error)
	HasOpenItem(ctx context.Context, subscriptionID string) (bool, error)
	GetItem(ctx context.Context, id string) (*domain.QueueItem, error)
	List(ctx context.Context, filter domain.QueueFilter) ([]*domain.QueueItem, int, error)

	ClaimBatch(ctx context.Context, limit int) ([]*domain.QueueItem, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// RequeueFailed moves failed items that still have attempts left back to
	// pending without touching attempts. It is the automatic retry path.
	RequeueFailed(ctx context.Context) (int64, error)
	// ExpireStale fails items stuck in processing longer than lease, which
	// happens when a processor dies mid-batch.
	ExpireStale(ctx context.Context, lease time.Duration) (int64, error)

	// RetryFailed is the administrative re-arm: attempts reset to 0 and the
	// error is cleared. Exhausted items are included only when asked.
	RetryFailed(ctx context.Context, includeExhausted bool) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	StatusSummary(ctx context.Context) (domain.StatusSummary, error)
}
