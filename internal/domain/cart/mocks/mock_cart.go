package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bazaar-hub/bazaar/internal/domain/cart"
)

// MockCart is a mock implementation of cart.Cart
type MockCart struct {
	mock.Mock
}

func (m *MockCart) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	args := m.Called(ctx, userID, productID, quantity)
	return args.Error(0)
}

var _ cart.Cart = (*MockCart)(nil)
