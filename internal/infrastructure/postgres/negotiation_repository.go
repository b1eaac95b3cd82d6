package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
)

// NegotiationRepository implements negotiation.Repository.
type NegotiationRepository struct {
	pool *pgxpool.Pool
}

func NewNegotiationRepository(pool *pgxpool.Pool) *NegotiationRepository {
	return &NegotiationRepository{pool: pool}
}

const conversationColumns = `id, conversation_id, product_id, buyer_id, seller_id, status, accepted_price, created_at, updated_at`

const messageColumns = `id, message_id, conversation_id, sender_id, text, is_proposal, price_offered, accepted, rejected, created_at`

func (r *NegotiationRepository) FindOpenConversation(ctx context.Context, productID, buyerID, sellerID uuid.UUID) (*negotiation.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE product_id=$1 AND buyer_id=$2 AND seller_id=$3 AND status <> 'CLOSED'
		ORDER BY created_at DESC
		LIMIT 1
	`, productID, buyerID, sellerID)
	return scanConversation(row)
}

func (r *NegotiationRepository) CreateConversation(ctx context.Context, c *negotiation.Conversation) (*negotiation.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations
		(conversation_id, product_id, buyer_id, seller_id, status, accepted_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (product_id, buyer_id, seller_id) WHERE status <> 'CLOSED' DO NOTHING
		RETURNING `+conversationColumns,
		c.ConversationID, c.ProductID, c.BuyerID, c.SellerID, c.Status, c.AcceptedPrice, c.CreatedAt, c.UpdatedAt)
	created, err := scanConversation(row)
	if err != nil {
		return nil, err
	}
	if created != nil {
		return created, nil
	}
	// Lost the race against a concurrent create for the same triple.
	return r.FindOpenConversation(ctx, c.ProductID, c.BuyerID, c.SellerID)
}

func (r *NegotiationRepository) GetConversation(ctx context.Context, conversationID uuid.UUID) (*negotiation.Conversation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_id=$1`, conversationID)
	return scanConversation(row)
}

func (r *NegotiationRepository) UpdateConversationStatus(ctx context.Context, conversationID uuid.UUID, status negotiation.Status, acceptedPrice *float64) (*negotiation.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET status=$1, accepted_price=$2, updated_at=now()
		WHERE conversation_id=$3
		RETURNING `+conversationColumns,
		status, acceptedPrice, conversationID)
	return scanConversation(row)
}

func (r *NegotiationRepository) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]*negotiation.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.conversation_id, c.product_id, c.buyer_id, c.seller_id, c.status, c.accepted_price, c.created_at, c.updated_at,
		       p.name, p.price, b.username, s.username
		FROM conversations c
		JOIN products p ON p.product_id = c.product_id
		JOIN users b ON b.user_id = c.buyer_id
		JOIN users s ON s.user_id = c.seller_id
		WHERE c.buyer_id=$1 OR c.seller_id=$1
		ORDER BY c.created_at DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*negotiation.ConversationSummary
	for rows.Next() {
		var sm negotiation.ConversationSummary
		c := &sm.Conversation
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.ProductID, &c.BuyerID, &c.SellerID, &c.Status, &c.AcceptedPrice, &c.CreatedAt, &c.UpdatedAt,
			&sm.Product.Name, &sm.Product.Price, &sm.Buyer.Username, &sm.Seller.Username); err != nil {
			return nil, err
		}
		sm.Product.ProductID = c.ProductID
		sm.Buyer.UserID = c.BuyerID
		sm.Seller.UserID = c.SellerID
		list = append(list, &sm)
	}
	return list, rows.Err()
}

func (r *NegotiationRepository) CreateMessage(ctx context.Context, m *negotiation.Message) (*negotiation.Message, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages
		(message_id, conversation_id, sender_id, text, is_proposal, price_offered, accepted, rejected, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+messageColumns,
		m.MessageID, m.ConversationID, m.SenderID, m.Text, m.IsProposal, m.PriceOffered, m.Accepted, m.Rejected, m.CreatedAt)
	return scanMessage(row)
}

func (r *NegotiationRepository) GetMessage(ctx context.Context, messageID uuid.UUID) (*negotiation.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id=$1`, messageID)
	return scanMessage(row)
}

func (r *NegotiationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*negotiation.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id=$1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*negotiation.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *NegotiationRepository) UpdateMessageDecision(ctx context.Context, messageID uuid.UUID, accepted bool) (*negotiation.Message, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE messages
		SET accepted=$1, rejected=NOT $1
		WHERE message_id=$2 AND is_proposal AND accepted IS NULL AND rejected IS NULL
		RETURNING `+messageColumns,
		accepted, messageID)
	m, err := scanMessage(row)
	if err != nil || m != nil {
		return m, err
	}
	existing, err := r.GetMessage(ctx, messageID)
	if err != nil || existing == nil {
		return nil, err
	}
	return nil, negotiation.ErrAlreadyDecided
}

func scanConversation(row pgx.Row) (*negotiation.Conversation, error) {
	var c negotiation.Conversation
	if err := row.Scan(&c.ID, &c.ConversationID, &c.ProductID, &c.BuyerID, &c.SellerID, &c.Status, &c.AcceptedPrice, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func scanMessage(row pgx.Row) (*negotiation.Message, error) {
	var m negotiation.Message
	if err := row.Scan(&m.ID, &m.MessageID, &m.ConversationID, &m.SenderID, &m.Text, &m.IsProposal, &m.PriceOffered, &m.Accepted, &m.Rejected, &m.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

var _ negotiation.Repository = (*NegotiationRepository)(nil)
