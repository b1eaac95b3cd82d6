package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainSession "github.com/bazaar-hub/bazaar/internal/domain/session"
	domainUser "github.com/bazaar-hub/bazaar/internal/domain/user"
)

var (
	// ErrInvalidCredentials is returned by Login for unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthenticated is returned when a token does not resolve to an active user.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Principal is the identity behind a session token.
type Principal struct {
	UserID    uuid.UUID
	Username  string
	Role      domainUser.Role
	SessionID uuid.UUID
}

// Service issues and resolves session tokens.
type Service struct {
	userRepo    domainUser.Repository
	sessionRepo domainSession.Repository
	sessionTTL  time.Duration
	logger      zerolog.Logger
}

// NewService creates an auth service.
func NewService(userRepo domainUser.Repository, sessionRepo domainSession.Repository, sessionTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sessionTTL:  sessionTTL,
		logger:      logger.With().Str("service", "auth").Logger(),
	}
}

// LoginResult contains login response.
type LoginResult struct {
	User    *domainUser.User
	Session *domainSession.Session
	Token   string
}

// Login verifies the password and creates a session. Only the token hash is stored.
func (s *Service) Login(ctx context.Context, username, password string, userAgent *string) (*LoginResult, error) {
	username = domainUser.NormalizeUsername(username)
	u, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !domainUser.VerifyPassword(u.PasswordHash, password) {
		s.logger.Warn().Str("username", username).Msg("login failed")
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive() {
		return nil, fmt.Errorf("user is disabled")
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	sess := domainSession.New(u.UserID, hashToken(token), s.sessionTTL, userAgent)
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.UserID.String()).Msg("user login")
	return &LoginResult{User: u, Session: sess, Token: token}, nil
}

// Authenticate resolves a session token into a principal. Expired sessions are removed.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	sess, err := s.sessionRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: session not found", ErrUnauthenticated)
	}
	if sess.IsExpired(time.Now().UTC()) {
		_ = s.sessionRepo.DeleteByID(ctx, sess.SessionID)
		return nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}
	u, err := s.userRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive() {
		return nil, fmt.Errorf("%w: user not active", ErrUnauthenticated)
	}
	_ = s.sessionRepo.UpdateLastSeen(ctx, sess.SessionID)
	return &Principal{
		UserID:    u.UserID,
		Username:  u.Username,
		Role:      u.Role,
		SessionID: sess.SessionID,
	}, nil
}

// Logout deletes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessionRepo.DeleteByTokenHash(ctx, hashToken(token))
}

// PurgeExpired removes sessions past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug().Int("count", n).Msg("expired sessions purged")
	}
	return n, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
