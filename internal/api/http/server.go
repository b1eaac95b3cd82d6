package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAuth "github.com/bazaar-hub/bazaar/internal/application/auth"
	appCatalog "github.com/bazaar-hub/bazaar/internal/application/catalog"
	appNegotiation "github.com/bazaar-hub/bazaar/internal/application/negotiation"
	appUser "github.com/bazaar-hub/bazaar/internal/application/user"
	"github.com/bazaar-hub/bazaar/internal/domain/cart"
	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
	domainUser "github.com/bazaar-hub/bazaar/internal/domain/user"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	authSvc             *appAuth.Service
	userSvc             *appUser.Service
	catalogSvc          *appCatalog.Service
	negotiationSvc      *appNegotiation.Service
	carts               cart.Repository
	gateway             http.Handler
	sessionCookieName   string
	sessionCookieSecure bool
	logger              zerolog.Logger
}

func NewServer(
	authSvc *appAuth.Service,
	userSvc *appUser.Service,
	catalogSvc *appCatalog.Service,
	negotiationSvc *appNegotiation.Service,
	carts cart.Repository,
	gateway http.Handler,
	sessionCookieName string,
	sessionCookieSecure bool,
	logger zerolog.Logger,
) *Server {
	return &Server{
		authSvc:             authSvc,
		userSvc:             userSvc,
		catalogSvc:          catalogSvc,
		negotiationSvc:      negotiationSvc,
		carts:               carts,
		gateway:             gateway,
		sessionCookieName:   sessionCookieName,
		sessionCookieSecure: sessionCookieSecure,
		logger:              logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})

	r.Route("/v1", func(r chi.Router) {
		// The websocket outlives any request timeout.
		if s.gateway != nil {
			r.Handle("/ws", s.gateway)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", s.login)
				r.Post("/bootstrap", s.bootstrapAdmin)
				r.Group(func(r chi.Router) {
					r.Use(s.requireAuth)
					r.Post("/logout", s.logout)
					r.Get("/me", s.me)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)

				r.With(s.requireRole(string(domainUser.RoleAdmin))).Post("/users", s.createUser)

				r.Route("/products", func(r chi.Router) {
					r.With(s.requireRole(string(domainUser.RoleSeller), string(domainUser.RoleAdmin))).Post("/", s.createProduct)
					r.Get("/{productId}", s.getProduct)
				})

				r.Get("/cart", s.getCart)

				r.Route("/conversations", func(r chi.Router) {
					r.Get("/", s.listConversations)
					r.Get("/{conversationId}/messages", s.listMessages)
				})
			})
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps negotiation error classes to HTTP statuses.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, negotiation.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, negotiation.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case errors.Is(err, negotiation.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, negotiation.ErrTransient):
		s.logger.Warn().Err(err).Msg("temporary failure")
		respondError(w, http.StatusServiceUnavailable, "TEMPORARY", "temporary failure, retry later")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
