package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Cart receives products added on behalf of a user.
type Cart interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error
}

// Item is one cart line.
type Item struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unitPrice"`
	AddedAt   time.Time `json:"addedAt"`
}

// Repository defines persistence for carts.
type Repository interface {
	Cart
	ListItems(ctx context.Context, userID uuid.UUID) ([]*Item, error)
}
