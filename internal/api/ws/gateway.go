// Package ws is the realtime negotiation gateway: it authenticates websocket connections,
// decodes event frames, calls the negotiation service and fans results out to room members.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bazaar-hub/bazaar/internal/application/auth"
	appNegotiation "github.com/bazaar-hub/bazaar/internal/application/negotiation"
	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/realtime"
)

const (
	readLimit   = 1 << 20
	readTimeout = 60 * time.Second

	// DefaultSessionRecheck is how long a resolved principal is trusted before the session
	// behind it is looked up again.
	DefaultSessionRecheck = time.Minute
)

// Authenticator resolves a credential into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// Options tune the gateway.
type Options struct {
	// CookieName is the session cookie read when no bearer header is present.
	CookieName string
	SendBuffer int
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
	// SessionRecheck defaults to DefaultSessionRecheck.
	SessionRecheck time.Duration
}

// Gateway serves the /v1/ws endpoint.
type Gateway struct {
	engine      *appNegotiation.Service
	auth        Authenticator
	hub         *realtime.Hub
	broadcaster realtime.Broadcaster
	opts        Options
	upgrader    websocket.Upgrader
	logger      zerolog.Logger

	handlers map[string]handlerFunc

	mu      sync.Mutex
	closing bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// session is the per-connection state seen by event handlers.
type session struct {
	conn      realtime.Client
	principal *auth.Principal
	token     string
	checkedAt time.Time
}

type handlerFunc func(ctx context.Context, s *session, f *Frame) error

// NewGateway builds a gateway. A nil broadcaster delivers to local room members only.
func NewGateway(engine *appNegotiation.Service, authenticator Authenticator, hub *realtime.Hub, broadcaster realtime.Broadcaster, opts Options, logger zerolog.Logger) *Gateway {
	if broadcaster == nil {
		broadcaster = realtime.LocalBroadcaster{Hub: hub}
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if opts.SessionRecheck <= 0 {
		opts.SessionRecheck = DefaultSessionRecheck
	}
	g := &Gateway{
		engine:      engine,
		auth:        authenticator,
		hub:         hub,
		broadcaster: broadcaster,
		opts:        opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With().Str("component", "ws_gateway").Logger(),
		done:   make(chan struct{}),
	}
	g.handlers = map[string]handlerFunc{
		EventCreateConversation: g.handleCreateConversation,
		EventJoinConversation:   g.handleJoinConversation,
		EventLeaveConversation:  g.handleLeaveConversation,
		EventSendMessage:        g.handleSendMessage,
		EventProposePrice:       g.handleProposePrice,
		EventDecideProposal:     g.handleDecideProposal,
		EventGetConversations:   g.handleGetConversations,
	}
	return g
}

// ServeHTTP upgrades the request and processes frames until the client disconnects.
// Connections without a valid credential are accepted but never join the hub.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer g.wg.Done()

	token := credential(r, g.opts.CookieName)
	principal := g.authenticate(r.Context(), token)

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID := uuid.Nil
	if principal != nil {
		userID = principal.UserID
	}
	conn := realtime.NewConnection(userID, ws, g.opts.SendBuffer)
	conn.Start()
	s := &session{conn: conn, principal: principal, token: token, checkedAt: time.Now()}

	if principal != nil {
		g.hub.Register(conn)
	}
	defer func() {
		g.hub.Unregister(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
		g.logger.Info().Str("conn_id", conn.ID()).Str("user_id", userID.String()).Msg("connection closed")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-g.done:
			conn.Close(websocket.CloseGoingAway, "server shutdown")
		case <-conn.Done():
		}
		cancel()
	}()

	g.logger.Info().
		Str("conn_id", conn.ID()).
		Str("user_id", userID.String()).
		Bool("authenticated", principal != nil).
		Msg("connection opened")

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				g.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("read failed")
			}
			return
		}
		g.dispatch(ctx, s, data)
	}
}

// Close disconnects every open connection and waits for their handlers to return.
func (g *Gateway) Close() {
	g.mu.Lock()
	if !g.closing {
		g.closing = true
		close(g.done)
	}
	g.mu.Unlock()
	g.wg.Wait()
}

// track counts a new connection handler unless the gateway is closing.
func (g *Gateway) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *Gateway) authenticate(ctx context.Context, token string) *auth.Principal {
	if token == "" || g.auth == nil {
		return nil
	}
	principal, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			g.logger.Warn().Err(err).Msg("authentication failed")
		}
		return nil
	}
	return principal
}

// sessionActive looks the session up again once the last check is older than
// SessionRecheck. Lookup failures other than an invalid session keep the principal.
func (g *Gateway) sessionActive(ctx context.Context, s *session) bool {
	if g.auth == nil || time.Since(s.checkedAt) < g.opts.SessionRecheck {
		return true
	}
	principal, err := g.auth.Authenticate(ctx, s.token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return false
		}
		g.logger.Warn().Err(err).Str("conn_id", s.conn.ID()).Msg("session recheck failed")
		return true
	}
	s.principal = principal
	s.checkedAt = time.Now()
	return true
}

func (g *Gateway) dispatch(ctx context.Context, s *session, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		g.replyError(s, &f, CodeBadFrame, "frame is not a valid json object")
		return
	}
	if f.Event == "" {
		g.replyError(s, &f, CodeBadFrame, "event is required")
		return
	}
	handler, ok := g.handlers[f.Event]
	if !ok {
		g.replyError(s, &f, CodeUnsupportedEvent, "unsupported event "+f.Event)
		return
	}
	if s.principal == nil {
		g.replyError(s, &f, CodeUnauthorized, "authentication required")
		return
	}
	if !g.sessionActive(ctx, s) {
		// The connection falls back to the unauthenticated state.
		g.hub.Unregister(s.conn)
		s.principal = nil
		g.replyError(s, &f, CodeUnauthorized, "session expired or logged out")
		return
	}

	if err := handler(ctx, s, &f); err != nil {
		code := errorCode(err)
		ev := g.logger.Info()
		if code == CodeTemporary {
			ev = g.logger.Warn()
		}
		ev.Err(err).
			Str("conn_id", s.conn.ID()).
			Str("user_id", s.principal.UserID.String()).
			Str("event", f.Event).
			Str("code", code).
			Msg("event failed")
		g.replyError(s, &f, code, errorMessage(err))
	}
}

func (g *Gateway) handleCreateConversation(ctx context.Context, s *session, f *Frame) error {
	var req createConversationRequest
	if err := decodeRequest(f.Data, &req); err != nil {
		return err
	}
	conv, err := retryOnce(ctx, func() (*negotiation.Conversation, error) {
		return g.engine.CreateConversation(ctx, req.ProductID, req.SellerID, s.principal.UserID)
	})
	if err != nil {
		return err
	}
	g.hub.Join(conv.ConversationID, s.conn)
	g.reply(s, EventConversationCreated, f.ID, conv)
	return nil
}

func (g *Gateway) handleJoinConversation(ctx context.Context, s *session, f *Frame) error {
	var req conversationRef
	if err := decodeRequest(f.Data, &req); err != nil {
		return err
	}
	msgs, err := retryOnce(ctx, func() ([]*negotiation.Message, error) {
		conv, err := g.engine.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(s.principal.UserID) {
			return nil, negotiation.Invalidf("user not part of conversation")
		}
		return g.engine.GetMessages(ctx, req.ConversationID)
	})
	if err != nil {
		return err
	}
	g.hub.Join(req.ConversationID, s.conn)
	g.reply(s, EventConversationMessages, f.ID, msgs)
	return nil
}

func (g *Gateway) handleLeaveConversation(_ context.Context, s *session, f *Frame) error {
	var req conversationRef
	if err := decodeRequest(f.Data, &req); err != nil {
		return err
	}
	g.hub.Leave(req.ConversationID, s.conn)
	g.ack(s, f, req)
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, s *session, f *Frame) error {
	var req sendMessageRequest
	if err := decodeRequest(f.Data, &req); err != nil {
		return err
	}
	msg, err := g.engine.SendMessage(ctx, req.ConversationID, s.principal.UserID, req.Message.Text)
	if err != nil {
		return err
	}
	if err := g.broadcast(ctx, msg.ConversationID, EventNewMessage, msg); err != nil {
		return err
	}
	g.ack(s, f, msg)
	return nil
}

func (g *Gateway) handleProposePrice(ctx context.Context, s *session, f *Frame) error {
	var req proposePriceRequest
	if err := decodeRequest(f.Data, &req); err != nil {
		return err
	}
	msg, err := g.engine.ProposePrice(ctx, req.ConversationID, s.principal.UserID, *req.Proposal.Price)
	if err != nil {
		return err
	}
	if err := g.broadcast(ctx, msg.ConversationID, EventNewProposal, msg); err != nil {
		return err
	}
	g.ack(s, f, msg)
	return nil
}

func (g *Gateway) handleDecideProposal(ctx context.Context, s *session, f *Frame) error {
	var req decideProposalRequest
	if err := decodeRequest(f.Data, &req); err != nil {
		return err
	}
	decision, err := g.engine.DecideProposal(ctx, req.ConversationID, req.MessageID, s.principal.UserID, *req.Decision.Accepted)
	if err != nil {
		return err
	}
	if err := g.broadcast(ctx, req.ConversationID, EventProposalUpdated, decision.Message); err != nil {
		return err
	}
	if decision.Conversation.Status == negotiation.StatusAccepted && *req.Decision.Accepted {
		if err := g.broadcast(ctx, req.ConversationID, EventConversationUpdated, decision.Conversation); err != nil {
			return err
		}
	}
	g.ack(s, f, decision.Message)
	return nil
}

func (g *Gateway) handleGetConversations(ctx context.Context, s *session, f *Frame) error {
	var req getConversationsRequest
	if err := decodeRequest(f.Data, &req); err != nil {
		return err
	}
	list, err := retryOnce(ctx, func() ([]*negotiation.ConversationSummary, error) {
		return g.engine.ListForUser(ctx, s.principal.UserID)
	})
	if err != nil {
		return err
	}
	g.reply(s, EventUserConversations, f.ID, list)
	return nil
}

// broadcast reports only encoding failures. Delivery problems are logged.
func (g *Gateway) broadcast(ctx context.Context, room uuid.UUID, event string, data interface{}) error {
	payload, err := encodeFrame(event, "", data)
	if err != nil {
		g.logger.Error().Err(err).Str("event", event).Msg("encode broadcast")
		return err
	}
	// Members other than the originator still get the frame after it disconnects.
	if err := g.broadcaster.Broadcast(context.WithoutCancel(ctx), room, payload); err != nil {
		g.logger.Warn().Err(err).Str("room", room.String()).Str("event", event).Msg("broadcast incomplete")
	}
	return nil
}

func (g *Gateway) ack(s *session, f *Frame, result interface{}) {
	g.reply(s, EventAck, f.ID, AckData{Event: f.Event, Result: result})
}

func (g *Gateway) reply(s *session, event, id string, data interface{}) {
	payload, err := encodeFrame(event, id, data)
	if err != nil {
		g.logger.Error().Err(err).Str("event", event).Msg("encode reply")
		if event == EventError {
			return
		}
		// The originator still learns that its request produced no usable reply.
		payload, err = encodeFrame(EventError, id, ErrorData{Code: CodeTemporary, Message: "reply could not be encoded"})
		if err != nil {
			return
		}
	}
	_ = s.conn.Send(payload)
}

func (g *Gateway) replyError(s *session, f *Frame, code, message string) {
	g.reply(s, EventError, f.ID, ErrorData{Code: code, Message: message, Event: f.Event})
}

// retryOnce repeats fn a single time when it fails with a temporary error. Only
// idempotent operations go through it.
func retryOnce[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err != nil && errors.Is(err, negotiation.ErrTransient) && ctx.Err() == nil {
		return fn()
	}
	return v, err
}

func credential(r *http.Request, cookieName string) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}
