package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for users. Lookups return nil, nil when absent.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Count(ctx context.Context) (int, error)
}
