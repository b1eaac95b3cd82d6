// Package memory holds process-local implementations of the repositories, used by the unit,
// HTTP and gateway tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bazaar-hub/bazaar/internal/domain/cart"
	"github.com/bazaar-hub/bazaar/internal/domain/catalog"
	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
	"github.com/bazaar-hub/bazaar/internal/domain/session"
	"github.com/bazaar-hub/bazaar/internal/domain/user"
)

type tripleKey struct {
	productID uuid.UUID
	buyerID   uuid.UUID
	sellerID  uuid.UUID
}

type cartLine struct {
	item cart.Item
	seq  int64
}

// Store keeps every entity behind one mutex. Returned values are copies.
type Store struct {
	mu  sync.RWMutex
	seq int64

	users    map[uuid.UUID]*user.User
	sessions map[string]*session.Session
	products map[uuid.UUID]*catalog.Product

	conversations map[uuid.UUID]*negotiation.Conversation
	open          map[tripleKey]uuid.UUID
	messages      map[uuid.UUID]*negotiation.Message
	history       map[uuid.UUID][]uuid.UUID

	carts map[uuid.UUID]map[uuid.UUID]*cartLine
}

func NewStore() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*user.User),
		sessions:      make(map[string]*session.Session),
		products:      make(map[uuid.UUID]*catalog.Product),
		conversations: make(map[uuid.UUID]*negotiation.Conversation),
		open:          make(map[tripleKey]uuid.UUID),
		messages:      make(map[uuid.UUID]*negotiation.Message),
		history:       make(map[uuid.UUID][]uuid.UUID),
		carts:         make(map[uuid.UUID]map[uuid.UUID]*cartLine),
	}
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

// Negotiations returns the negotiation.Repository view of the store.
func (s *Store) Negotiations() *NegotiationRepository { return &NegotiationRepository{s: s} }

// Products returns the catalog.Repository view of the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Carts returns the cart.Repository view of the store.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Users returns the user.Repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Sessions returns the session.Repository view of the store.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// NegotiationRepository implements negotiation.Repository.
type NegotiationRepository struct{ s *Store }

func (r *NegotiationRepository) FindOpenConversation(_ context.Context, productID, buyerID, sellerID uuid.UUID) (*negotiation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.open[tripleKey{productID, buyerID, sellerID}]
	if !ok {
		return nil, nil
	}
	return copyConversation(r.s.conversations[id]), nil
}

func (r *NegotiationRepository) CreateConversation(_ context.Context, c *negotiation.Conversation) (*negotiation.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := tripleKey{c.ProductID, c.BuyerID, c.SellerID}
	if id, ok := r.s.open[key]; ok {
		return copyConversation(r.s.conversations[id]), nil
	}
	stored := copyConversation(c)
	stored.ID = r.s.next()
	r.s.conversations[stored.ConversationID] = stored
	if !stored.IsClosed() {
		r.s.open[key] = stored.ConversationID
	}
	return copyConversation(stored), nil
}

func (r *NegotiationRepository) GetConversation(_ context.Context, conversationID uuid.UUID) (*negotiation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return copyConversation(r.s.conversations[conversationID]), nil
}

func (r *NegotiationRepository) UpdateConversationStatus(_ context.Context, conversationID uuid.UUID, status negotiation.Status, acceptedPrice *float64) (*negotiation.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	c.Status = status
	c.AcceptedPrice = copyFloat(acceptedPrice)
	c.UpdatedAt = time.Now().UTC()
	if c.IsClosed() {
		delete(r.s.open, tripleKey{c.ProductID, c.BuyerID, c.SellerID})
	}
	return copyConversation(c), nil
}

func (r *NegotiationRepository) ListConversationsForUser(_ context.Context, userID uuid.UUID) ([]*negotiation.ConversationSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var list []*negotiation.ConversationSummary
	for _, c := range r.s.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		sm := &negotiation.ConversationSummary{Conversation: *copyConversation(c)}
		sm.Product.ProductID = c.ProductID
		if p, ok := r.s.products[c.ProductID]; ok {
			sm.Product.Name = p.Name
			sm.Product.Price = p.Price
		}
		sm.Buyer = r.s.userSummary(c.BuyerID)
		sm.Seller = r.s.userSummary(c.SellerID)
		list = append(list, sm)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (r *NegotiationRepository) CreateMessage(_ context.Context, m *negotiation.Message) (*negotiation.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.conversations[m.ConversationID]; !ok {
		return nil, fmt.Errorf("conversation %s does not exist", m.ConversationID)
	}
	stored := copyMessage(m)
	stored.ID = r.s.next()
	r.s.messages[stored.MessageID] = stored
	r.s.history[stored.ConversationID] = append(r.s.history[stored.ConversationID], stored.MessageID)
	return copyMessage(stored), nil
}

func (r *NegotiationRepository) GetMessage(_ context.Context, messageID uuid.UUID) (*negotiation.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return copyMessage(r.s.messages[messageID]), nil
}

func (r *NegotiationRepository) ListMessages(_ context.Context, conversationID uuid.UUID) ([]*negotiation.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := r.s.history[conversationID]
	msgs := make([]*negotiation.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, copyMessage(r.s.messages[id]))
	}
	return msgs, nil
}

func (r *NegotiationRepository) UpdateMessageDecision(_ context.Context, messageID uuid.UUID, accepted bool) (*negotiation.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[messageID]
	if !ok {
		return nil, nil
	}
	if !m.IsProposal || !m.IsPending() {
		return nil, negotiation.ErrAlreadyDecided
	}
	m.Decide(accepted)
	return copyMessage(m), nil
}

// ProductRepository implements catalog.Repository.
type ProductRepository struct{ s *Store }

func (r *ProductRepository) Create(_ context.Context, p *catalog.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ProductID]; ok {
		return fmt.Errorf("product %s already exists", p.ProductID)
	}
	p.ID = r.s.next()
	stored := *p
	r.s.products[p.ProductID] = &stored
	return nil
}

func (r *ProductRepository) GetProduct(_ context.Context, productID uuid.UUID) (*catalog.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[productID]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

// Delete removes a product, as a seller withdrawing a listing would.
func (r *ProductRepository) Delete(_ context.Context, productID uuid.UUID) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.products, productID)
}

// CartRepository implements cart.Repository.
type CartRepository struct{ s *Store }

func (r *CartRepository) AddItem(_ context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return fmt.Errorf("product not found: %s", productID)
	}
	lines, ok := r.s.carts[userID]
	if !ok {
		lines = make(map[uuid.UUID]*cartLine)
		r.s.carts[userID] = lines
	}
	if line, ok := lines[productID]; ok {
		line.item.Quantity += quantity
		return nil
	}
	lines[productID] = &cartLine{
		item: cart.Item{
			ProductID: productID,
			Name:      p.Name,
			Quantity:  quantity,
			UnitPrice: p.Price,
			AddedAt:   time.Now().UTC(),
		},
		seq: r.s.next(),
	}
	return nil
}

func (r *CartRepository) ListItems(_ context.Context, userID uuid.UUID) ([]*cart.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	lines := make([]*cartLine, 0, len(r.s.carts[userID]))
	for _, line := range r.s.carts[userID] {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].seq < lines[j].seq })
	items := make([]*cart.Item, 0, len(lines))
	for _, line := range lines {
		it := line.item
		items = append(items, &it)
	}
	return items, nil
}

// UserRepository implements user.Repository.
type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %q already exists", u.Username)
		}
	}
	u.ID = r.s.next()
	stored := *u
	r.s.users[u.UserID] = &stored
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, userID uuid.UUID) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

// SessionRepository implements session.Repository.
type SessionRepository struct{ s *Store }

func (r *SessionRepository) Create(_ context.Context, sess *session.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess.ID = r.s.next()
	stored := *sess
	r.s.sessions[sess.TokenHash] = &stored
	return nil
}

func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*session.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	out := *sess
	return &out, nil
}

func (r *SessionRepository) DeleteByID(_ context.Context, sessionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for hash, sess := range r.s.sessions {
		if sess.SessionID == sessionID {
			delete(r.s.sessions, hash)
		}
	}
	return nil
}

func (r *SessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, tokenHash)
	return nil
}

func (r *SessionRepository) UpdateLastSeen(_ context.Context, sessionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	for _, sess := range r.s.sessions {
		if sess.SessionID == sessionID {
			sess.LastSeenAt = &now
		}
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for hash, sess := range r.s.sessions {
		if sess.IsExpired(now) {
			delete(r.s.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (s *Store) userSummary(userID uuid.UUID) negotiation.UserSummary {
	sm := negotiation.UserSummary{UserID: userID}
	if u, ok := s.users[userID]; ok {
		sm.Username = u.Username
	}
	return sm
}

func copyConversation(c *negotiation.Conversation) *negotiation.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.AcceptedPrice = copyFloat(c.AcceptedPrice)
	return &out
}

func copyMessage(m *negotiation.Message) *negotiation.Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Text != nil {
		text := *m.Text
		out.Text = &text
	}
	out.PriceOffered = copyFloat(m.PriceOffered)
	if m.Accepted != nil {
		v := *m.Accepted
		out.Accepted = &v
	}
	if m.Rejected != nil {
		v := *m.Rejected
		out.Rejected = &v
	}
	return &out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

var (
	_ negotiation.Repository = (*NegotiationRepository)(nil)
	_ catalog.Repository     = (*ProductRepository)(nil)
	_ cart.Repository        = (*CartRepository)(nil)
	_ user.Repository        = (*UserRepository)(nil)
	_ session.Repository     = (*SessionRepository)(nil)
)
