//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	httpapi "github.com/bazaar-hub/bazaar/internal/api/http"
	"github.com/bazaar-hub/bazaar/internal/api/ws"
	"github.com/bazaar-hub/bazaar/internal/application/auth"
	"github.com/bazaar-hub/bazaar/internal/application/catalog"
	"github.com/bazaar-hub/bazaar/internal/application/negotiation"
	"github.com/bazaar-hub/bazaar/internal/application/user"
	domainCatalog "github.com/bazaar-hub/bazaar/internal/domain/catalog"
	domainNegotiation "github.com/bazaar-hub/bazaar/internal/domain/negotiation"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/postgres"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/realtime"
)

const adminUsername = "alice"
const testPassword = "S3cure!Passw0rd"

type testEnv struct {
	server *httptest.Server
	pool   *pgxpool.Pool
}

func TestNegotiationFlowIntegration(t *testing.T) {
	env := newTestEnv(t)

	adminToken := bootstrapAndLogin(t, env.server.URL)
	seller := createUser(t, env.server.URL, adminToken, "seller1", "SELLER")
	buyer := createUser(t, env.server.URL, adminToken, "buyer1", "BUYER")
	sellerToken := login(t, env.server.URL, "seller1")
	buyerToken := login(t, env.server.URL, "buyer1")

	var product domainCatalog.Product
	doJSON(t, http.MethodPost, env.server.URL+"/v1/products", sellerToken, map[string]interface{}{
		"name":  "Walnut desk",
		"price": 420,
	}, &product)

	buyerWS := dialWS(t, env.server.URL, buyerToken)
	sellerWS := dialWS(t, env.server.URL, sellerToken)

	sendFrame(t, buyerWS, ws.EventCreateConversation, "c1", map[string]string{
		"productId": product.ProductID.String(),
		"sellerId":  seller.String(),
	})
	var conv domainNegotiation.Conversation
	waitFor(t, buyerWS, ws.EventConversationCreated, &conv)
	if conv.BuyerID != buyer || conv.Status != domainNegotiation.StatusOpen {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	sendFrame(t, sellerWS, ws.EventJoinConversation, "j1", map[string]string{"conversationId": conv.ConversationID.String()})
	waitFor(t, sellerWS, ws.EventConversationMessages, nil)

	sendFrame(t, buyerWS, ws.EventProposePrice, "p1", map[string]interface{}{
		"conversationId": conv.ConversationID.String(),
		"proposal":       map[string]interface{}{"price": 380.5},
	})
	var proposal domainNegotiation.Message
	waitFor(t, sellerWS, ws.EventNewProposal, &proposal)
	if proposal.PriceOffered == nil || *proposal.PriceOffered != 380.5 {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}

	sendFrame(t, sellerWS, ws.EventDecideProposal, "d1", map[string]interface{}{
		"conversationId": conv.ConversationID.String(),
		"messageId":      proposal.MessageID.String(),
		"decision":       map[string]bool{"accepted": true},
	})
	var updated domainNegotiation.Conversation
	waitFor(t, buyerWS, ws.EventConversationUpdated, &updated)
	if updated.Status != domainNegotiation.StatusAccepted || updated.AcceptedPrice == nil || *updated.AcceptedPrice != 380.5 {
		t.Fatalf("unexpected conversation update: %+v", updated)
	}

	var cart struct {
		Items []struct {
			ProductID uuid.UUID `json:"productId"`
			Quantity  int       `json:"quantity"`
		} `json:"items"`
	}
	doJSON(t, http.MethodGet, env.server.URL+"/v1/cart", buyerToken, nil, &cart)
	if len(cart.Items) != 1 || cart.Items[0].ProductID != product.ProductID || cart.Items[0].Quantity != 1 {
		t.Fatalf("unexpected cart: %+v", cart)
	}

	var msgs []domainNegotiation.Message
	doJSON(t, http.MethodGet, env.server.URL+"/v1/conversations/"+conv.ConversationID.String()+"/messages", sellerToken, nil, &msgs)
	if len(msgs) != 1 || msgs[0].Accepted == nil || !*msgs[0].Accepted {
		t.Fatalf("unexpected history: %+v", msgs)
	}
}

func TestRepositoryConcurrencyIntegration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	adminToken := bootstrapAndLogin(t, env.server.URL)
	seller := createUser(t, env.server.URL, adminToken, "seller2", "SELLER")
	buyer := createUser(t, env.server.URL, adminToken, "buyer2", "BUYER")
	product := domainCatalog.NewProduct(seller, "Lamp", "", 30)
	if err := postgres.NewProductRepository(env.pool).Create(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}

	repo := postgres.NewNegotiationRepository(env.pool)

	const writers = 8
	ids := make([]uuid.UUID, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := repo.CreateConversation(ctx, domainNegotiation.NewConversation(product.ProductID, buyer, seller))
			if err != nil {
				t.Errorf("create conversation: %v", err)
				return
			}
			ids[i] = c.ConversationID
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected one open conversation, got %v", ids)
		}
	}

	msg, err := repo.CreateMessage(ctx, domainNegotiation.NewProposal(ids[0], buyer, 25))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(accepted bool) {
			defer wg.Done()
			_, err := repo.UpdateMessageDecision(ctx, msg.MessageID, accepted)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domainNegotiation.ErrAlreadyDecided):
				conflicts++
			default:
				t.Errorf("decide: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("expected exactly one decision, got %d wins and %d conflicts", wins, conflicts)
	}

	missing, err := repo.UpdateMessageDecision(ctx, uuid.New(), true)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown message, got %v, %v", missing, err)
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}

	root := repoRoot(t)
	if err := postgres.RunMigrations(ctx, pool, filepath.Join(root, "internal", "migrations")); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	negotiationRepo := postgres.NewNegotiationRepository(pool)

	authSvc := auth.NewService(userRepo, sessionRepo, 24*time.Hour, logger)
	userSvc := user.NewService(userRepo, logger)
	catalogSvc := catalog.NewService(productRepo, logger)
	negotiationSvc := negotiation.NewService(negotiationRepo, productRepo, cartRepo, nil, logger)

	gateway := ws.NewGateway(negotiationSvc, authSvc, realtime.NewHub(), nil, ws.Options{CookieName: "jwt"}, logger)
	apiServer := httpapi.NewServer(authSvc, userSvc, catalogSvc, negotiationSvc, cartRepo, gateway, "jwt", false, logger)
	server := httptest.NewServer(apiServer.Router())

	t.Cleanup(func() {
		gateway.Close()
		server.Close()
		pool.Close()
	})
	return &testEnv{server: server, pool: pool}
}

func doJSON(t *testing.T, method, url, token string, body interface{}, out interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status %d: %s", method, url, resp.StatusCode, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func bootstrapAndLogin(t *testing.T, baseURL string) string {
	t.Helper()
	doJSON(t, http.MethodPost, baseURL+"/v1/auth/bootstrap", "", map[string]string{
		"username": adminUsername,
		"password": testPassword,
	}, nil)
	return login(t, baseURL, adminUsername)
}

func login(t *testing.T, baseURL, username string) string {
	t.Helper()
	var out struct {
		SessionToken string `json:"sessionToken"`
	}
	doJSON(t, http.MethodPost, baseURL+"/v1/auth/login", "", map[string]string{
		"username": username,
		"password": testPassword,
	}, &out)
	if out.SessionToken == "" {
		t.Fatalf("login %s returned no token", username)
	}
	return out.SessionToken
}

func createUser(t *testing.T, baseURL, adminToken, username, role string) uuid.UUID {
	t.Helper()
	var out struct {
		UserID uuid.UUID `json:"userId"`
	}
	doJSON(t, http.MethodPost, baseURL+"/v1/users", adminToken, map[string]string{
		"username": username,
		"password": testPassword,
		"role":     role,
	}, &out)
	return out.UserID
}

func dialWS(t *testing.T, baseURL, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event, id string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.WriteJSON(ws.Frame{Event: event, ID: id, Data: raw}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// waitFor reads frames until one with the given event arrives. Error frames fail the test.
func waitFor(t *testing.T, conn *websocket.Conn, event string, out interface{}) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set deadline: %v", err)
		}
		var f ws.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == ws.EventError {
			t.Fatalf("error frame while waiting for %s: %s", event, string(f.Data))
		}
		if f.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(f.Data, out); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
		}
		return
	}
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			cart_items,
			carts,
			messages,
			conversations,
			products,
			sessions,
			users
		RESTART IDENTITY CASCADE
	`)
	return err
}
