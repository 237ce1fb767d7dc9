// Package gate implements the optional shared-secret gate in front of a
// box's public content.
//
// Secrets are stored as Argon2id hashes and checked on the server. A visitor
// who presents the exact secret receives a short-lived signed grant, which
// every gated request must carry. Changing a box's secret invalidates grants
// issued for the old one.
package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/model"
)

// GrantAudience is the JWT audience of box access grants.
const GrantAudience = "tellus.box_access"

// GrantHeader carries a box access grant on gated requests.
const GrantHeader = "X-Box-Access"

var (
	// ErrSecretMismatch indicates the presented secret is wrong.
	ErrSecretMismatch = errors.New("box secret does not match")
	// ErrAccessRequired indicates a gated box was accessed without a valid grant.
	ErrAccessRequired = errors.New("box access grant required")
)

// Grant authorizes access to one box until ExpiresAt.
type Grant struct {
	Token     string    `json:"access_token"`
	BoxID     string    `json:"box_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type grantClaims struct {
	SecretVersion string `json:"sv"`
	jwt.RegisteredClaims
}

// Gate verifies box secrets and issues grants.
type Gate struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// New creates a Gate signing grants with key.
func New(key string, ttl time.Duration) (*Gate, error) {
	if len(key) < 32 {
		return nil, auth.ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Gate{key: []byte(key), ttl: ttl, now: time.Now}, nil
}

// HashSecret prepares a box secret for storage. An empty secret means the
// box is ungated and hashes to "".
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	return auth.HashPassword(secret)
}

// Verify checks attempt against the box secret with exact-string semantics.
func Verify(box *model.Box, attempt string) error {
	if !box.RequiresSecret() {
		return nil
	}
	ok, err := auth.VerifyPassword(attempt, box.SecretHash)
	if err != nil {
		return fmt.Errorf("verify box secret: %w", err)
	}
	if !ok {
		return ErrSecretMismatch
	}
	return nil
}

// Unlock verifies attempt and returns a grant on success.
// Nothing is recorded on failure.
func (g *Gate) Unlock(box *model.Box, attempt string) (*Grant, error) {
	if err := Verify(box, attempt); err != nil {
		return nil, err
	}
	return g.Issue(box)
}

// Authorize checks that grantToken grants access to box.
// Ungated boxes are always accessible.
func (g *Gate) Authorize(box *model.Box, grantToken string) error {
	if !box.RequiresSecret() {
		return nil
	}
	if grantToken == "" {
		return ErrAccessRequired
	}

	var claims grantClaims
	_, err := jwt.ParseWithClaims(grantToken, &claims,
		func(t *jwt.Token) (any, error) { return g.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(GrantAudience),
		jwt.WithSubject(box.ID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return ErrAccessRequired
	}
	if claims.SecretVersion != secretVersion(box) {
		return ErrAccessRequired
	}
	return nil
}

// Issue signs a grant for box without checking a secret. Callers that own
// the box (the admin dashboard) use it directly.
func (g *Gate) Issue(box *model.Box) (*Grant, error) {
	now := g.now().UTC().Truncate(time.Second)
	exp := now.Add(g.ttl)

	claims := grantClaims{
		SecretVersion: secretVersion(box),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   box.ID,
			Audience:  jwt.ClaimStrings{GrantAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.key)
	if err != nil {
		return nil, fmt.Errorf("sign grant: %w", err)
	}
	return &Grant{Token: signed, BoxID: box.ID, ExpiresAt: exp}, nil
}

func secretVersion(box *model.Box) string {
	if box.SecretHash == "" {
		return ""
	}
	return auth.QuickHash(box.SecretHash)[:8]
}
