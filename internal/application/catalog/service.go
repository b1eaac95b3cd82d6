package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domain "github.com/bazaar-hub/bazaar/internal/domain/catalog"
	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
)

// Service manages product listings.
type Service struct {
	repo   domain.Repository
	logger zerolog.Logger
}

func NewService(repo domain.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("service", "catalog").Logger(),
	}
}

// CreateInput defines product creation input.
type CreateInput struct {
	Name        string
	Description string
	Price       float64
}

// CreateProduct lists a product owned by sellerID.
func (s *Service) CreateProduct(ctx context.Context, sellerID uuid.UUID, input CreateInput) (*domain.Product, error) {
	price, err := negotiation.NormalizePrice(input.Price)
	if err != nil {
		return nil, err
	}
	p := domain.NewProduct(sellerID, input.Name, input.Description, price)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("product_id", p.ProductID.String()).Str("seller_id", sellerID.String()).Float64("price", p.Price).Msg("product created")
	return p, nil
}

// GetProduct returns nil, nil when the product does not exist.
func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, productID)
}
