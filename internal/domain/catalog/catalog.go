package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents product listing state.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Product is a listed item offered by one seller.
type Product struct {
	ID          int64     `json:"id"`
	ProductID   uuid.UUID `json:"productId"`
	SellerID    uuid.UUID `json:"sellerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Catalog resolves products. GetProduct returns nil, nil when the product does not exist.
type Catalog interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (*Product, error)
}

// Repository defines persistence for products.
type Repository interface {
	Catalog
	Create(ctx context.Context, product *Product) error
}

// NewProduct builds an approved product listing.
func NewProduct(sellerID uuid.UUID, name, description string, price float64) *Product {
	now := time.Now().UTC()
	return &Product{
		ProductID:   uuid.New(),
		SellerID:    sellerID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Price:       price,
		Status:      StatusApproved,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (p *Product) Validate() error {
	if p.SellerID == uuid.Nil {
		return errors.New("seller_id is required")
	}
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Price < 0 {
		return errors.New("price must not be negative")
	}
	return nil
}
