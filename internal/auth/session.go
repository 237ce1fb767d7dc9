package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionAudience is the JWT audience of admin session tokens.
const SessionAudience = "tellus.admin"

// minSecretLen is the shortest accepted HMAC signing secret.
const minSecretLen = 32

var (
	// ErrInvalidSession indicates a malformed, forged or wrong-audience token.
	ErrInvalidSession = errors.New("invalid session token")
	// ErrSessionExpired indicates the token is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrWeakSecret indicates the signing secret is too short.
	ErrWeakSecret = errors.New("session secret must be at least 32 bytes")
)

// Session is an authenticated admin session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TTL returns the remaining lifetime of the session.
func (s *Session) TTL(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

type sessionClaims struct {
	Username string `json:"usr,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies HS256 session tokens.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates an issuer. The secret must be at least 32 bytes.
func NewSessionIssuer(secret string, ttl time.Duration) (*SessionIssuer, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue creates a new session for the user and returns its signed token.
func (i *SessionIssuer) Issue(userID, username string) (string, *Session, error) {
	now := i.now().UTC().Truncate(time.Second)
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}

	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{SessionAudience},
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return signed, sess, nil
}

// Parse verifies a token and returns its session.
func (i *SessionIssuer) Parse(tokenString string) (*Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(SessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidSession
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return &Session{
		ID:        claims.ID,
		UserID:    claims.Subject,
		Username:  claims.Username,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
