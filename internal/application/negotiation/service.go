package negotiation

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bazaar-hub/bazaar/internal/domain/cart"
	"github.com/bazaar-hub/bazaar/internal/domain/catalog"
	domain "github.com/bazaar-hub/bazaar/internal/domain/negotiation"
)

// Service enforces the negotiation protocol: conversation dedup, membership,
// proposal decisions and the cart side effect of an accepted price.
type Service struct {
	repo    domain.Repository
	catalog catalog.Catalog
	cart    cart.Cart
	policy  *PricePolicy
	logger  zerolog.Logger
}

// NewService creates a negotiation service. A nil policy allows every non-negative price.
func NewService(repo domain.Repository, catalog catalog.Catalog, cart cart.Cart, policy *PricePolicy, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		cart:    cart,
		policy:  policy,
		logger:  logger.With().Str("service", "negotiation").Logger(),
	}
}

// CreateConversation opens a negotiation between buyerID and the seller of productID.
// An existing non-closed conversation for the same triple is returned unchanged.
func (s *Service) CreateConversation(ctx context.Context, productID, sellerID, buyerID uuid.UUID) (*domain.Conversation, error) {
	product, err := s.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID != sellerID {
		s.logger.Warn().Str("product_id", productID.String()).Str("seller_id", sellerID.String()).Msg("product does not belong to seller")
		return nil, domain.Invalidf("product does not belong to seller")
	}
	if buyerID == sellerID {
		return nil, domain.Invalidf("cannot negotiate on your own product")
	}

	existing, err := s.repo.FindOpenConversation(ctx, productID, buyerID, sellerID)
	if err != nil {
		return nil, domain.Transient(err)
	}
	if existing != nil {
		s.logger.Debug().Str("conversation_id", existing.ConversationID.String()).Msg("returning open conversation")
		return existing, nil
	}

	conv, err := s.repo.CreateConversation(ctx, domain.NewConversation(productID, buyerID, sellerID))
	if err != nil {
		return nil, domain.Transient(err)
	}
	s.logger.Info().
		Str("conversation_id", conv.ConversationID.String()).
		Str("product_id", productID.String()).
		Str("buyer_id", buyerID.String()).
		Str("seller_id", sellerID.String()).
		Msg("conversation created")
	return conv, nil
}

// GetConversation loads a conversation or fails with ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, domain.Transient(err)
	}
	if conv == nil {
		return nil, domain.NotFoundf("conversation %s", conversationID)
	}
	return conv, nil
}

// GetMessages returns the conversation history oldest first. Callers enforce read access.
func (s *Service) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, domain.Transient(err)
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return msgs, nil
}

// SendMessage appends a plain text message from one of the participants.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, text string) (*domain.Message, error) {
	text = domain.NormalizeText(text)
	if text == "" {
		return nil, domain.Invalidf("message text is required")
	}
	if utf8.RuneCountInString(text) > domain.MaxTextLength {
		return nil, domain.Invalidf("message text exceeds %d characters", domain.MaxTextLength)
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		s.logger.Warn().Str("conversation_id", conversationID.String()).Str("sender_id", senderID.String()).Msg("sender not part of conversation")
		return nil, domain.Invalidf("sender not part of conversation")
	}

	msg, err := s.repo.CreateMessage(ctx, domain.NewTextMessage(conversationID, senderID, text))
	if err != nil {
		return nil, domain.Transient(err)
	}
	s.logger.Info().Str("conversation_id", conversationID.String()).Str("sender_id", senderID.String()).Msg("message sent")
	return msg, nil
}

// ProposePrice appends a pending price proposal from one of the participants.
func (s *Service) ProposePrice(ctx context.Context, conversationID, senderID uuid.UUID, price float64) (*domain.Message, error) {
	price, err := domain.NormalizePrice(price)
	if err != nil {
		return nil, err
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		s.logger.Warn().Str("conversation_id", conversationID.String()).Str("sender_id", senderID.String()).Msg("sender not part of conversation")
		return nil, domain.Invalidf("sender not part of conversation")
	}
	if err := s.checkPolicy(ctx, conv, price); err != nil {
		return nil, err
	}

	msg, err := s.repo.CreateMessage(ctx, domain.NewProposal(conversationID, senderID, price))
	if err != nil {
		return nil, domain.Transient(err)
	}
	s.logger.Info().
		Str("conversation_id", conversationID.String()).
		Str("sender_id", senderID.String()).
		Float64("price", price).
		Msg("price proposed")
	return msg, nil
}

// Decision is the outcome of deciding a proposal.
type Decision struct {
	Message      *domain.Message
	Conversation *domain.Conversation
}

// DecideProposal records the receiver's decision on a pending proposal. Accepting adds the
// product to the beneficiary's cart and moves the conversation to ACCEPTED. The cart
// addition is not rolled back if the conversation update fails afterwards.
func (s *Service) DecideProposal(ctx context.Context, conversationID, messageID, receiverID uuid.UUID, accepted bool) (*Decision, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, domain.Transient(err)
	}
	if msg == nil || msg.ConversationID != conversationID {
		return nil, domain.NotFoundf("message %s", messageID)
	}
	if !msg.IsValidProposal() {
		s.logger.Warn().Str("message_id", messageID.String()).Msg("not a valid proposal")
		return nil, domain.Invalidf("not a valid proposal")
	}
	if msg.SenderID == receiverID {
		s.logger.Warn().Str("message_id", messageID.String()).Str("user_id", receiverID.String()).Msg("attempt to decide own proposal")
		return nil, domain.Invalidf("cannot decide your own proposal")
	}
	if !conv.HasParticipant(receiverID) {
		s.logger.Warn().Str("conversation_id", conversationID.String()).Str("receiver_id", receiverID.String()).Msg("receiver not part of conversation")
		return nil, domain.Invalidf("receiver not part of conversation")
	}
	if !msg.IsPending() {
		return nil, domain.ErrAlreadyDecided
	}

	var product *catalog.Product
	if accepted {
		// Resolved before the decision is written so a removed product leaves the proposal pending.
		product, err = s.getProduct(ctx, conv.ProductID)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateMessageDecision(ctx, messageID, accepted)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyDecided) {
			s.logger.Warn().Str("message_id", messageID.String()).Msg("concurrent decision lost")
		}
		return nil, domain.Transient(err)
	}
	s.logger.Info().
		Str("conversation_id", conversationID.String()).
		Str("message_id", messageID.String()).
		Str("receiver_id", receiverID.String()).
		Bool("accepted", accepted).
		Msg("proposal decided")

	if !accepted {
		return &Decision{Message: updated, Conversation: conv}, nil
	}

	target := beneficiary(conv, msg)
	if err := s.cart.AddItem(ctx, target, product.ProductID, 1); err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID.String()).Str("user_id", target.String()).Msg("cart add failed after acceptance")
		return nil, domain.Transient(err)
	}
	s.logger.Info().Str("product_id", product.ProductID.String()).Str("user_id", target.String()).Msg("product added to cart")

	price := *msg.PriceOffered
	conv, err = s.repo.UpdateConversationStatus(ctx, conversationID, domain.StatusAccepted, &price)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("cart updated but conversation status not recorded")
		return nil, domain.Transient(err)
	}
	s.logger.Info().Str("conversation_id", conversationID.String()).Float64("accepted_price", price).Msg("conversation accepted")
	return &Decision{Message: updated, Conversation: conv}, nil
}

// ListForUser returns the conversations userID takes part in, enriched for display.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationSummary, error) {
	list, err := s.repo.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, domain.Transient(err)
	}
	if list == nil {
		list = []*domain.ConversationSummary{}
	}
	return list, nil
}

// beneficiary picks the user whose cart receives the product: the proposer,
// whichever side of the deal they are on.
func beneficiary(conv *domain.Conversation, proposal *domain.Message) uuid.UUID {
	if proposal.SenderID == conv.BuyerID {
		return conv.BuyerID
	}
	return conv.SellerID
}

func (s *Service) getProduct(ctx context.Context, productID uuid.UUID) (*catalog.Product, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, domain.Transient(err)
	}
	if product == nil {
		s.logger.Warn().Str("product_id", productID.String()).Msg("product not found")
		return nil, domain.NotFoundf("product %s", productID)
	}
	return product, nil
}

func (s *Service) checkPolicy(ctx context.Context, conv *domain.Conversation, price float64) error {
	if s.policy == nil {
		return nil
	}
	listPrice := 0.0
	if s.policy.NeedsListPrice() {
		product, err := s.getProduct(ctx, conv.ProductID)
		if err != nil {
			return err
		}
		listPrice = product.Price
	}
	allowed, err := s.policy.Allows(price, listPrice)
	if err != nil {
		return domain.Invalidf("price rejected by policy: %v", err)
	}
	if !allowed {
		return domain.Invalidf("price rejected by policy")
	}
	return nil
}
