package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is an issued bearer credential. Only the token hash is stored.
type Session struct {
	ID         int64      `json:"id"`
	SessionID  uuid.UUID  `json:"sessionId"`
	TokenHash  string     `json:"-"`
	UserID     uuid.UUID  `json:"userId"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	UserAgent  *string    `json:"userAgent,omitempty"`
}

func New(userID uuid.UUID, tokenHash string, ttl time.Duration, userAgent *string) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:  uuid.New(),
		TokenHash:  tokenHash,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastSeenAt: &now,
		UserAgent:  userAgent,
	}
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
