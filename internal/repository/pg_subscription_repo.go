package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

const subscriptionColumns = `id, product_id, email, delivered, created_at, delivered_at`

type pgSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPgSubscriptionRepository returns a SubscriptionRepository backed by PostgreSQL.
func NewPgSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &pgSubscriptionRepository{pool: pool}
}

func (r *pgSubscriptionRepository) Insert(ctx context.Context, s *domain.Subscription) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stock_subscriptions (id, product_id, email, delivered, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.ProductID, s.Email, s.Delivered, s.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *pgSubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM stock_subscriptions WHERE id = $1`, id)
	s, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *pgSubscriptionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stock_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgSubscriptionRepository) ListPending(ctx context.Context, productID string) ([]*domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM stock_subscriptions
		WHERE product_id = $1 AND NOT delivered
		ORDER BY created_at ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list pending subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *pgSubscriptionRepository) ListAllPending(ctx context.Context) ([]*domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM stock_subscriptions
		WHERE NOT delivered
		ORDER BY product_id, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all pending subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// MarkDelivered never flips an already delivered row, so delivered_at keeps
// the first delivery time.
func (r *pgSubscriptionRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_subscriptions
		SET delivered = TRUE, delivered_at = $1
		WHERE id = $2 AND NOT delivered`, at, id)
	if err != nil {
		return fmt.Errorf("mark subscription delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM stock_subscriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check subscription: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	if err := row.Scan(&s.ID, &s.ProductID, &s.Email, &s.Delivered, &s.CreatedAt, &s.DeliveredAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSubscriptions(rows pgx.Rows) ([]*domain.Subscription, error) {
	var result []*domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
