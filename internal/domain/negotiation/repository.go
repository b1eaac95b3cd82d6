package negotiation

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository defines persistence for conversations and messages.
// Lookups return nil, nil when the row does not exist.
type Repository interface {
	FindOpenConversation(ctx context.Context, productID, buyerID, sellerID uuid.UUID) (*Conversation, error)
	// CreateConversation inserts an OPEN conversation, or returns the open one a concurrent
	// writer created for the same triple.
	CreateConversation(ctx context.Context, conversation *Conversation) (*Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error)
	UpdateConversationStatus(ctx context.Context, conversationID uuid.UUID, status Status, acceptedPrice *float64) (*Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]*ConversationSummary, error)

	CreateMessage(ctx context.Context, message *Message) (*Message, error)
	GetMessage(ctx context.Context, messageID uuid.UUID) (*Message, error)
	// ListMessages returns the conversation history in creation order.
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
	// UpdateMessageDecision records the decision only if none is recorded yet,
	// otherwise it returns ErrAlreadyDecided.
	UpdateMessageDecision(ctx context.Context, messageID uuid.UUID, accepted bool) (*Message, error)
}
