package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bazaar-hub/bazaar/internal/domain/catalog"
)

// MockCatalog is a mock implementation of catalog.Catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetProduct(ctx context.Context, productID uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

var _ catalog.Catalog = (*MockCatalog)(nil)

// MockRepository is a mock implementation of catalog.Repository
type MockRepository struct {
	MockCatalog
}

func (m *MockRepository) Create(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

var _ catalog.Repository = (*MockRepository)(nil)
