// Package token generates the public identifiers handed out for boxes and
// complaints.
package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Complaint token format: CPL-{10 uppercase base-36 chars}
// Example: CPL-7K2M9QX4ZB
const (
	ComplaintPrefix    = "CPL-"
	ComplaintSuffixLen = 10

	// BoxFragmentLen is the length of each of the two box token fragments.
	BoxFragmentLen = 13

	// DefaultMaxRetries bounds the uniqueness retry loop.
	DefaultMaxRetries = 3
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

var (
	// ErrTokenExhausted indicates every generated candidate already existed.
	ErrTokenExhausted = errors.New("could not generate unique token")

	complaintTokenRegex = regexp.MustCompile(`^CPL-[0-9A-Z]{10}$`)
	boxTokenRegex       = regexp.MustCompile(`^[0-9a-z]{8,64}$`)
)

// BoxToken returns a box-share token made of two random base-36 fragments.
func BoxToken() (string, error) {
	first, err := randomBase36(BoxFragmentLen)
	if err != nil {
		return "", err
	}
	second, err := randomBase36(BoxFragmentLen)
	if err != nil {
		return "", err
	}
	return first + second, nil
}

// ComplaintToken returns a tracking token such as CPL-7K2M9QX4ZB.
func ComplaintToken() (string, error) {
	suffix, err := randomBase36(ComplaintSuffixLen)
	if err != nil {
		return "", err
	}
	return ComplaintPrefix + strings.ToUpper(suffix), nil
}

// RandomName returns n random base-36 characters, used for file names.
func RandomName(n int) (string, error) {
	return randomBase36(n)
}

// IsComplaintToken reports whether s is a well-formed tracking token.
func IsComplaintToken(s string) bool {
	return complaintTokenRegex.MatchString(s)
}

// IsBoxToken reports whether s could be a box-share token.
func IsBoxToken(s string) bool {
	return boxTokenRegex.MatchString(s)
}

// NormalizeComplaintToken trims and upper-cases a user-typed tracking token.
func NormalizeComplaintToken(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func randomBase36(n int) (string, error) {
	max := big.NewInt(int64(len(base36)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = base36[idx.Int64()]
	}
	return string(out), nil
}

// ExistsFunc reports whether a token is already taken.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// Generator produces tokens that are not yet present in the datastore.
// The database unique index remains the final authority; the check only
// avoids surfacing a conflict to the caller in the common case.
type Generator struct {
	exists     ExistsFunc
	maxRetries int
}

// NewGenerator creates a Generator. A nil exists func disables the check.
func NewGenerator(exists ExistsFunc) *Generator {
	return &Generator{exists: exists, maxRetries: DefaultMaxRetries}
}

// Box generates a unique box-share token.
func (g *Generator) Box(ctx context.Context) (string, error) {
	return g.unique(ctx, BoxToken)
}

// Complaint generates a unique complaint tracking token.
func (g *Generator) Complaint(ctx context.Context) (string, error) {
	return g.unique(ctx, ComplaintToken)
}

func (g *Generator) unique(ctx context.Context, gen func() (string, error)) (string, error) {
	for i := 0; i < g.maxRetries; i++ {
		candidate, err := gen()
		if err != nil {
			return "", err
		}
		if g.exists == nil {
			return candidate, nil
		}
		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check token: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrTokenExhausted
}
