package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

const queueColumns = `id, subscription_id, product_id, email, status, attempts, max_attempts,
		       last_error, created_at, processed_at, sent_at`

type pgQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPgQueueRepository returns a QueueRepository backed by the
// notification_queue table.
func NewPgQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgQueueRepository{pool: pool}
}

func (r *pgQueueRepository) Enqueue(ctx context.Context, s *domain.Subscription, maxAttempts int) (*domain.QueueItem, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	item := &domain.QueueItem{
		ID:             uuid.New().String(),
		SubscriptionID: s.ID,
		ProductID:      s.ProductID,
		Email:          s.Email,
		Status:         domain.StatusPending,
		MaxAttempts:    maxAttempts,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_queue
			(id, subscription_id, product_id, email, status, attempts, max_attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ID, item.SubscriptionID, item.ProductID, item.Email,
		item.Status, item.Attempts, item.MaxAttempts, item.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// idx_queue_open_subscription: the subscription already has an
			// open item.
			return nil, fmt.Errorf("%w: subscription %s already queued", domain.ErrConflict, s.ID)
		}
		return nil, fmt.Errorf("insert queue item: %w", err)
	}
	return item, nil
}

func (r *pgQueueRepository) HasOpenItem(ctx context.Context, subscriptionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_queue
			WHERE subscription_id = $1 AND status IN ('pending','processing'))`,
		subscriptionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open queue item: %w", err)
	}
	return exists, nil
}

func (r *pgQueueRepository) GetItem(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM notification_queue WHERE id = $1`, id)
	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return item, err
}

func (r *pgQueueRepository) List(ctx context.Context, f domain.QueueFilter) ([]*domain.QueueItem, int, error) {
	where, args := buildQueueWhere(f)
	offset := (f.Page - 1) * f.Limit

	// Count total matching rows for pagination metadata.
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notification_queue"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue items: %w", err)
	}

	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM notification_queue%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, queueColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	return items, total, err
}

// ClaimBatch flips up to limit pending rows to processing in one statement.
// FOR UPDATE SKIP LOCKED makes concurrent claimers take disjoint rows, and
// the outer status check keeps the update conditional on the row still
// being pending.
func (r *pgQueueRepository) ClaimBatch(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE notification_queue q
		SET status = 'processing', attempts = q.attempts + 1, processed_at = NOW()
		WHERE q.status = 'pending'
		  AND q.id IN (
			SELECT id FROM notification_queue
			WHERE status = 'pending' AND attempts < max_attempts
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED)
		RETURNING `+queueColumns, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queue batch: %w", err)
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// MarkSent resolves the item and flips the subscription's delivered flag in
// one transaction, so a sent item always has a delivered subscription.
func (r *pgQueueRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var subscriptionID string
	err = tx.QueryRow(ctx, `
		UPDATE notification_queue
		SET status = 'sent', sent_at = $1, last_error = NULL
		WHERE id = $2 AND status = 'processing'
		RETURNING subscription_id`, sentAt, id).Scan(&subscriptionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("mark queue item sent: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stock_subscriptions
		SET delivered = TRUE, delivered_at = $1
		WHERE id = $2 AND NOT delivered`, sentAt, subscriptionID); err != nil {
		return fmt.Errorf("mark subscription delivered: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mark sent: %w", err)
	}
	return nil
}

func (r *pgQueueRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'failed', last_error = $1
		WHERE id = $2 AND status = 'processing'`, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark queue item failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// openCandidates selects, per subscription, the oldest failed item that may
// be re-armed without colliding with idx_queue_open_subscription.
const openCandidates = `
		SELECT DISTINCT ON (f.subscription_id) f.id
		FROM notification_queue f
		WHERE f.status = 'failed'%s
		  AND NOT EXISTS (
			SELECT 1 FROM notification_queue o
			WHERE o.subscription_id = f.subscription_id
			  AND o.status IN ('pending','processing'))
		ORDER BY f.subscription_id, f.created_at ASC`

func (r *pgQueueRepository) RequeueFailed(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'pending'
		WHERE id IN (`+fmt.Sprintf(openCandidates, `
		  AND f.attempts < f.max_attempts`)+`)`)
	if err != nil {
		return 0, fmt.Errorf("requeue failed items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgQueueRepository) ExpireStale(ctx context.Context, lease time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'failed', last_error = 'processing lease expired'
		WHERE status = 'processing' AND processed_at < $1`,
		time.Now().UTC().Add(-lease))
	if err != nil {
		return 0, fmt.Errorf("expire stale queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgQueueRepository) RetryFailed(ctx context.Context, includeExhausted bool) (int64, error) {
	filter := `
		  AND NOT EXISTS (
			SELECT 1 FROM stock_subscriptions s
			WHERE s.id = f.subscription_id AND s.delivered)`
	if !includeExhausted {
		filter += `
		  AND f.attempts < f.max_attempts`
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'pending', attempts = 0, last_error = NULL
		WHERE id IN (`+fmt.Sprintf(openCandidates, filter)+`)`)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgQueueRepository) ClearFailed(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notification_queue WHERE status = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("clear failed items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgQueueRepository) StatusSummary(ctx context.Context) (domain.StatusSummary, error) {
	var summary domain.StatusSummary
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM notification_queue GROUP BY status`)
	if err != nil {
		return summary, fmt.Errorf("queue status summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return summary, fmt.Errorf("scan status count: %w", err)
		}
		summary.Add(status, n)
	}
	return summary, rows.Err()
}

// ---- helpers ----

func scanQueueItem(row pgx.Row) (*domain.QueueItem, error) {
	var q domain.QueueItem
	err := row.Scan(
		&q.ID, &q.SubscriptionID, &q.ProductID, &q.Email, &q.Status,
		&q.Attempts, &q.MaxAttempts, &q.LastError,
		&q.CreatedAt, &q.ProcessedAt, &q.SentAt,
	)
	if err != nil {
		return nil, err
	}
	if !q.Status.IsValid() {
		return nil, fmt.Errorf("queue item %s: unknown status %q", q.ID, q.Status)
	}
	return &q, nil
}

func scanQueueItems(rows pgx.Rows) ([]*domain.QueueItem, error) {
	var result []*domain.QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

// buildQueueWhere builds a parameterised WHERE clause from a QueueFilter.
func buildQueueWhere(f domain.QueueFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.Status != nil {
		args = append(args, *f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
