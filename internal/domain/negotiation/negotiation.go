package negotiation

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status describes conversation state.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusAccepted Status = "ACCEPTED"
	// StatusClosed is terminal and only set outside this service.
	StatusClosed Status = "CLOSED"
)

// MaxTextLength bounds a plain message body, in runes.
const MaxTextLength = 4000

// Conversation is a negotiation thread between one buyer and one seller over one product.
type Conversation struct {
	ID             int64     `json:"-"`
	ConversationID uuid.UUID `json:"conversationId"`
	ProductID      uuid.UUID `json:"productId"`
	BuyerID        uuid.UUID `json:"buyerId"`
	SellerID       uuid.UUID `json:"sellerId"`
	Status         Status    `json:"status"`
	AcceptedPrice  *float64  `json:"acceptedPrice,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewConversation builds an OPEN conversation for the triple.
func NewConversation(productID, buyerID, sellerID uuid.UUID) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ConversationID: uuid.New(),
		ProductID:      productID,
		BuyerID:        buyerID,
		SellerID:       sellerID,
		Status:         StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return userID == c.BuyerID || userID == c.SellerID
}

// IsClosed reports whether the conversation reached its terminal state.
func (c *Conversation) IsClosed() bool {
	return c.Status == StatusClosed
}

// Message belongs to exactly one conversation. It is either plain text or a price proposal.
type Message struct {
	ID             int64     `json:"-"`
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
	Text           *string   `json:"text,omitempty"`
	IsProposal     bool      `json:"isProposal"`
	PriceOffered   *float64  `json:"priceOffered,omitempty"`
	Accepted       *bool     `json:"accepted,omitempty"`
	Rejected       *bool     `json:"rejected,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewTextMessage builds a plain message.
func NewTextMessage(conversationID, senderID uuid.UUID, text string) *Message {
	return &Message{
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           &text,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewProposal builds a pending price proposal.
func NewProposal(conversationID, senderID uuid.UUID, price float64) *Message {
	return &Message{
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		IsProposal:     true,
		PriceOffered:   &price,
		CreatedAt:      time.Now().UTC(),
	}
}

// IsValidProposal reports whether the message carries a price to decide on.
func (m *Message) IsValidProposal() bool {
	return m.IsProposal && m.PriceOffered != nil
}

// IsPending reports whether no decision has been recorded yet.
func (m *Message) IsPending() bool {
	return m.Accepted == nil && m.Rejected == nil
}

// Decide sets the mutually exclusive decision flags.
func (m *Message) Decide(accepted bool) {
	rejected := !accepted
	m.Accepted = &accepted
	m.Rejected = &rejected
}

// UserSummary is the display form of a participant.
type UserSummary struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

// ProductSummary is the display form of the negotiated product.
type ProductSummary struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
}

// ConversationSummary is a conversation enriched for listing views.
type ConversationSummary struct {
	Conversation
	Product ProductSummary `json:"product"`
	Buyer   UserSummary    `json:"buyer"`
	Seller  UserSummary    `json:"seller"`
}

// MaxPrice is the largest amount a NUMERIC(12,2) column holds.
const MaxPrice = 9_999_999_999.99

// RoundPrice rounds an amount to cents.
func RoundPrice(price float64) float64 {
	return math.Round(price*100) / 100
}

// NormalizePrice rounds price to cents and rejects amounts that are negative, not finite or
// above MaxPrice once rounded.
func NormalizePrice(price float64) (float64, error) {
	if math.IsNaN(price) || price < 0 || price > MaxPrice {
		return 0, Invalidf("price must be an amount between 0 and %.2f", MaxPrice)
	}
	rounded := RoundPrice(price)
	if math.IsInf(rounded, 0) || math.IsNaN(rounded) || rounded > MaxPrice {
		return 0, Invalidf("price must be an amount between 0 and %.2f", MaxPrice)
	}
	return rounded, nil
}

// NormalizeText trims surrounding whitespace from a message body.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}
