package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

type pgProductRepository struct {
	pool *pgxpool.Pool
}

// NewPgProductRepository returns a ProductRepository reading the catalog's
// products table.
func NewPgProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepository{pool: pool}
}

func (r *pgProductRepository) GetProductDetails(ctx context.Context, productID string) (*domain.ProductDetails, error) {
	var p domain.ProductDetails
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, ROUND(price * 100)::bigint, COALESCE(image_url, '')
		FROM products WHERE id = $1`, productID).
		Scan(&p.ID, &p.Name, &p.PriceCents, &p.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product details: %w", err)
	}
	return &p, nil
}
