package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaar-hub/bazaar/internal/domain/cart"
)

// CartRepository implements cart.Repository. A user's cart is created on first add.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// AddItem adds quantity units of productID, incrementing an existing line. The unit price is
// copied from the product when the line is first inserted.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var cartID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO carts (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING id
		`, userID).Scan(&cartID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO cart_items (cart_id, product_id, quantity, unit_price)
			SELECT $1, p.product_id, $3, p.price FROM products p WHERE p.product_id=$2
			ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		`, cartID, productID, quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("product not found: %s", productID)
		}
		return nil
	})
}

func (r *CartRepository) ListItems(ctx context.Context, userID uuid.UUID) ([]*cart.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.product_id, p.name, i.quantity, i.unit_price, i.added_at
		FROM cart_items i
		JOIN carts c ON c.id = i.cart_id
		JOIN products p ON p.product_id = i.product_id
		WHERE c.user_id=$1
		ORDER BY i.added_at ASC, i.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*cart.Item, 0)
	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice, &it.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

var _ cart.Repository = (*CartRepository)(nil)
