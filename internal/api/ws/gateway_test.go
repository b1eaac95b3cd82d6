package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bazaar-hub/bazaar/internal/application/auth"
	appNegotiation "github.com/bazaar-hub/bazaar/internal/application/negotiation"
	"github.com/bazaar-hub/bazaar/internal/domain/catalog"
	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
	"github.com/bazaar-hub/bazaar/internal/domain/user"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/memory"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/realtime"
)

const testPassword = "S3cure!Passw0rd"

type testEnv struct {
	store   *memory.Store
	authSvc *auth.Service
	gateway *Gateway
	server  *httptest.Server
	product *catalog.Product

	buyer, seller, outsider *user.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOptions(t, Options{CookieName: "jwt"})
}

func newTestEnvWithOptions(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()
	store := memory.NewStore()
	authSvc := auth.NewService(store.Users(), store.Sessions(), time.Hour, logger)
	engine := appNegotiation.NewService(store.Negotiations(), store.Products(), store.Carts(), nil, logger)
	gateway := NewGateway(engine, authSvc, realtime.NewHub(), nil, opts, logger)

	env := &testEnv{store: store, authSvc: authSvc, gateway: gateway}
	env.buyer = env.createUser(t, "buyer1", user.RoleBuyer)
	env.seller = env.createUser(t, "seller1", user.RoleSeller)
	env.outsider = env.createUser(t, "outsider1", user.RoleBuyer)
	env.product = catalog.NewProduct(env.seller.UserID, "Lamp", "brass desk lamp", 100)
	require.NoError(t, store.Products().Create(ctx, env.product))

	env.server = httptest.NewServer(gateway)
	return env
}

func (e *testEnv) close() {
	e.gateway.Close()
	e.server.Close()
}

func (e *testEnv) createUser(t *testing.T, username string, role user.Role) *user.User {
	t.Helper()
	hash, err := user.HashPassword(testPassword)
	require.NoError(t, err)
	now := time.Now().UTC()
	u := &user.User{
		UserID:       uuid.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Status:       user.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *testEnv) token(t *testing.T, u *user.User) string {
	t.Helper()
	res, err := e.authSvc.Login(context.Background(), u.Username, testPassword, nil)
	require.NoError(t, err)
	return res.Token
}

func (e *testEnv) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	c, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return c
}

func (e *testEnv) dialBearer(t *testing.T, u *user.User) *websocket.Conn {
	return e.dial(t, http.Header{"Authorization": []string{"Bearer " + e.token(t, u)}})
}

func (e *testEnv) dialCookie(t *testing.T, u *user.User) *websocket.Conn {
	return e.dial(t, http.Header{"Cookie": []string{"jwt=" + e.token(t, u)}})
}

func send(t *testing.T, c *websocket.Conn, event, id string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, c.WriteJSON(Frame{Event: event, ID: id, Data: raw}))
}

func read(t *testing.T, c *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f Frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func expect(t *testing.T, c *websocket.Conn, event string, out interface{}) Frame {
	t.Helper()
	f := read(t, c)
	require.Equal(t, event, f.Event, "frame data: %s", string(f.Data))
	if out != nil {
		require.NoError(t, json.Unmarshal(f.Data, out))
	}
	return f
}

func expectError(t *testing.T, c *websocket.Conn, code string) ErrorData {
	t.Helper()
	var data ErrorData
	expect(t, c, EventError, &data)
	assert.Equal(t, code, data.Code, data.Message)
	return data
}

type ackResult[T any] struct {
	Event  string `json:"event"`
	Result T      `json:"result"`
}

func TestGateway_NegotiationFlow(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	env := newTestEnv(t)
	defer env.close()

	buyer := env.dialBearer(t, env.buyer)
	defer buyer.Close()
	seller := env.dialCookie(t, env.seller)
	defer seller.Close()

	send(t, buyer, EventCreateConversation, "c1", map[string]interface{}{
		"productId": env.product.ProductID,
		"sellerId":  env.seller.UserID,
	})
	var conv negotiation.Conversation
	f := expect(t, buyer, EventConversationCreated, &conv)
	assert.Equal(t, "c1", f.ID)
	assert.Equal(t, negotiation.StatusOpen, conv.Status)
	assert.Equal(t, env.buyer.UserID, conv.BuyerID)

	send(t, seller, EventJoinConversation, "j1", map[string]interface{}{"conversationId": conv.ConversationID})
	var history []negotiation.Message
	expect(t, seller, EventConversationMessages, &history)
	assert.Empty(t, history)

	send(t, buyer, EventProposePrice, "p1", map[string]interface{}{
		"conversationId": conv.ConversationID,
		"proposal":       map[string]interface{}{"price": 90},
	})
	var proposal negotiation.Message
	expect(t, buyer, EventNewProposal, &proposal)
	var ack ackResult[negotiation.Message]
	f = expect(t, buyer, EventAck, &ack)
	assert.Equal(t, "p1", f.ID)
	assert.Equal(t, EventProposePrice, ack.Event)
	assert.Equal(t, proposal.MessageID, ack.Result.MessageID)

	var seen negotiation.Message
	expect(t, seller, EventNewProposal, &seen)
	assert.Equal(t, proposal.MessageID, seen.MessageID)
	require.NotNil(t, seen.PriceOffered)
	assert.Equal(t, 90.0, *seen.PriceOffered)

	send(t, seller, EventDecideProposal, "d1", map[string]interface{}{
		"conversationId": conv.ConversationID,
		"messageId":      proposal.MessageID,
		"decision":       map[string]interface{}{"accepted": true},
	})
	for _, c := range []*websocket.Conn{seller, buyer} {
		var decided negotiation.Message
		expect(t, c, EventProposalUpdated, &decided)
		require.NotNil(t, decided.Accepted)
		assert.True(t, *decided.Accepted)

		var updated negotiation.Conversation
		expect(t, c, EventConversationUpdated, &updated)
		assert.Equal(t, negotiation.StatusAccepted, updated.Status)
		require.NotNil(t, updated.AcceptedPrice)
		assert.Equal(t, 90.0, *updated.AcceptedPrice)

		if c == seller {
			expect(t, seller, EventAck, nil)
		}
	}

	items, err := env.store.Carts().ListItems(context.Background(), env.buyer.UserID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, env.product.ProductID, items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)

	send(t, seller, EventGetConversations, "g1", nil)
	var list []negotiation.ConversationSummary
	expect(t, seller, EventUserConversations, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "buyer1", list[0].Buyer.Username)
	assert.Equal(t, negotiation.StatusAccepted, list[0].Status)
}

func TestGateway_CreateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	defer env.close()
	buyer := env.dialBearer(t, env.buyer)
	defer buyer.Close()

	payload := map[string]interface{}{"productId": env.product.ProductID, "sellerId": env.seller.UserID}
	var first, second negotiation.Conversation
	send(t, buyer, EventCreateConversation, "1", payload)
	expect(t, buyer, EventConversationCreated, &first)
	send(t, buyer, EventCreateConversation, "2", payload)
	expect(t, buyer, EventConversationCreated, &second)

	assert.Equal(t, first.ConversationID, second.ConversationID)
}

func TestGateway_UnauthenticatedConnection(t *testing.T) {
	env := newTestEnv(t)
	defer env.close()
	anon := env.dial(t, nil)
	defer anon.Close()

	send(t, anon, EventGetConversations, "g1", nil)
	data := expectError(t, anon, CodeUnauthorized)
	assert.Equal(t, EventGetConversations, data.Event)

	bogus := env.dial(t, http.Header{"Authorization": []string{"Bearer not-a-token"}})
	defer bogus.Close()
	send(t, bogus, EventCreateConversation, "c1", map[string]interface{}{
		"productId": env.product.ProductID,
		"sellerId":  env.seller.UserID,
	})
	expectError(t, bogus, CodeUnauthorized)
	assert.Equal(t, 0, env.gateway.hub.ClientCount())
}

func TestGateway_BadFramesKeepConnectionOpen(t *testing.T) {
	env := newTestEnv(t)
	defer env.close()
	buyer := env.dialBearer(t, env.buyer)
	defer buyer.Close()

	require.NoError(t, buyer.WriteMessage(websocket.TextMessage, []byte("{not json")))
	expectError(t, buyer, CodeBadFrame)

	require.NoError(t, buyer.WriteMessage(websocket.TextMessage, []byte(`{"id":"x"}`)))
	expectError(t, buyer, CodeBadFrame)

	send(t, buyer, "deleteEverything", "u1", nil)
	data := expectError(t, buyer, CodeUnsupportedEvent)
	assert.Equal(t, "deleteEverything", data.Event)

	send(t, buyer, EventCreateConversation, "c1", map[string]interface{}{
		"productId": env.product.ProductID,
		"sellerId":  env.seller.UserID,
		"discount":  50,
	})
	expectError(t, buyer, CodeInvalidRequest)

	send(t, buyer, EventProposePrice, "p1", map[string]interface{}{"conversationId": uuid.New()})
	expectError(t, buyer, CodeInvalidRequest)

	send(t, buyer, EventGetConversations, "g1", nil)
	expect(t, buyer, EventUserConversations, nil)
}

func TestGateway_ParticipantRules(t *testing.T) {
	env := newTestEnv(t)
	defer env.close()
	buyer := env.dialBearer(t, env.buyer)
	defer buyer.Close()
	outsider := env.dialBearer(t, env.outsider)
	defer outsider.Close()

	send(t, buyer, EventCreateConversation, "c1", map[string]interface{}{
		"productId": env.product.ProductID,
		"sellerId":  env.seller.UserID,
	})
	var conv negotiation.Conversation
	expect(t, buyer, EventConversationCreated, &conv)

	send(t, outsider, EventJoinConversation, "j1", map[string]interface{}{"conversationId": conv.ConversationID})
	expectError(t, outsider, CodeInvalidRequest)

	send(t, outsider, EventSendMessage, "m1", map[string]interface{}{
		"conversationId": conv.ConversationID,
		"message":        map[string]interface{}{"text": "hi"},
	})
	expectError(t, outsider, CodeInvalidRequest)

	send(t, buyer, EventJoinConversation, "j2", map[string]interface{}{"conversationId": uuid.New()})
	expectError(t, buyer, CodeNotFound)

	send(t, buyer, EventProposePrice, "p1", map[string]interface{}{
		"conversationId": conv.ConversationID,
		"proposal":       map[string]interface{}{"price": 70},
	})
	var proposal negotiation.Message
	expect(t, buyer, EventNewProposal, &proposal)
	expect(t, buyer, EventAck, nil)

	send(t, buyer, EventDecideProposal, "d1", map[string]interface{}{
		"conversationId": conv.ConversationID,
		"messageId":      proposal.MessageID,
		"decision":       map[string]interface{}{"accepted": true},
	})
	data := expectError(t, buyer, CodeInvalidRequest)
	assert.Contains(t, data.Message, "cannot decide your own proposal")

	msgs, err := env.store.Negotiations().ListMessages(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestGateway_LeaveStopsDelivery(t *testing.T) {
	env := newTestEnv(t)
	defer env.close()
	buyer := env.dialBearer(t, env.buyer)
	defer buyer.Close()
	seller := env.dialBearer(t, env.seller)
	defer seller.Close()

	send(t, buyer, EventCreateConversation, "c1", map[string]interface{}{
		"productId": env.product.ProductID,
		"sellerId":  env.seller.UserID,
	})
	var conv negotiation.Conversation
	expect(t, buyer, EventConversationCreated, &conv)
	send(t, seller, EventJoinConversation, "j1", map[string]interface{}{"conversationId": conv.ConversationID})
	expect(t, seller, EventConversationMessages, nil)

	send(t, seller, EventLeaveConversation, "l1", map[string]interface{}{"conversationId": conv.ConversationID})
	expect(t, seller, EventAck, nil)

	send(t, buyer, EventSendMessage, "m1", map[string]interface{}{
		"conversationId": conv.ConversationID,
		"message":        map[string]interface{}{"text": "anyone there?"},
	})
	expect(t, buyer, EventNewMessage, nil)
	expect(t, buyer, EventAck, nil)

	// The seller only sees its own request answered, not the buyer's message.
	send(t, seller, EventGetConversations, "g1", nil)
	expect(t, seller, EventUserConversations, nil)
}

func TestGateway_OutOfRangePriceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	defer env.close()
	buyer := env.dialBearer(t, env.buyer)
	defer buyer.Close()
	seller := env.dialBearer(t, env.seller)
	defer seller.Close()

	send(t, buyer, EventCreateConversation, "c1", map[string]interface{}{
		"productId": env.product.ProductID,
		"sellerId":  env.seller.UserID,
	})
	var conv negotiation.Conversation
	expect(t, buyer, EventConversationCreated, &conv)

	for i, price := range []float64{1.7e308, negotiation.MaxPrice + 1} {
		send(t, buyer, EventProposePrice, fmt.Sprintf("p%d", i), map[string]interface{}{
			"conversationId": conv.ConversationID,
			"proposal":       map[string]interface{}{"price": price},
		})
		expectError(t, buyer, CodeInvalidRequest)
	}

	msgs, err := env.store.Negotiations().ListMessages(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	send(t, seller, EventJoinConversation, "j1", map[string]interface{}{"conversationId": conv.ConversationID})
	var history []negotiation.Message
	expect(t, seller, EventConversationMessages, &history)
	assert.Empty(t, history)
}

type capturingClient struct {
	frames [][]byte
}

func (c *capturingClient) ID() string {
	return "capture"
}

func (c *capturingClient) UserID() uuid.UUID {
	return uuid.Nil
}

func (c *capturingClient) Send(payload []byte) error {
	c.frames = append(c.frames, payload)
	return nil
}

func TestGateway_UnencodableReplyBecomesError(t *testing.T) {
	g := NewGateway(nil, nil, realtime.NewHub(), nil, Options{}, zerolog.Nop())
	client := &capturingClient{}
	s := &session{conn: client}

	g.reply(s, EventAck, "r1", AckData{Event: EventProposePrice, Result: math.Inf(1)})

	require.Len(t, client.frames, 1)
	var f Frame
	require.NoError(t, json.Unmarshal(client.frames[0], &f))
	assert.Equal(t, EventError, f.Event)
	assert.Equal(t, "r1", f.ID)
	var data ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, CodeTemporary, data.Code)
}

func TestGateway_UnencodableBroadcastIsReported(t *testing.T) {
	hub := realtime.NewHub()
	member := &capturingClient{}
	room := uuid.New()
	hub.Register(member)
	require.True(t, hub.Join(room, member))
	g := NewGateway(nil, nil, hub, nil, Options{}, zerolog.Nop())

	assert.Error(t, g.broadcast(context.Background(), room, EventNewProposal, math.NaN()))
	assert.Empty(t, member.frames)
}

func TestGateway_LogoutRevokesOpenSocket(t *testing.T) {
	env := newTestEnvWithOptions(t, Options{CookieName: "jwt", SessionRecheck: time.Nanosecond})
	defer env.close()
	token := env.token(t, env.buyer)
	buyer := env.dial(t, http.Header{"Authorization": []string{"Bearer " + token}})
	defer buyer.Close()

	send(t, buyer, EventGetConversations, "g1", nil)
	expect(t, buyer, EventUserConversations, nil)
	require.Equal(t, 1, env.gateway.hub.ClientCount())

	require.NoError(t, env.authSvc.Logout(context.Background(), token))

	send(t, buyer, EventGetConversations, "g2", nil)
	expectError(t, buyer, CodeUnauthorized)
	send(t, buyer, EventGetConversations, "g3", nil)
	expectError(t, buyer, CodeUnauthorized)
	assert.Equal(t, 0, env.gateway.hub.ClientCount())
}

func TestGateway_RejectsConnectionsAfterClose(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.Close()
	defer env.server.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, env.gateway.track())
}
