package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaar-hub/bazaar/internal/domain/catalog"
)

// ProductRepository implements catalog.Repository.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO products
		(product_id, seller_id, name, description, price, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, p.ProductID, p.SellerID, p.Name, p.Description, p.Price, p.Status, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
}

func (r *ProductRepository) GetProduct(ctx context.Context, productID uuid.UUID) (*catalog.Product, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, product_id, seller_id, name, description, price, status, created_at, updated_at
		FROM products WHERE product_id=$1
	`, productID)
	var p catalog.Product
	if err := row.Scan(&p.ID, &p.ProductID, &p.SellerID, &p.Name, &p.Description, &p.Price, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

var _ catalog.Repository = (*ProductRepository)(nil)
