// Package testutil holds helpers shared by integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tellus/tellus/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731_0001

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema runs every down migration in reverse order, then every up
// migration, leaving an empty schema.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}
	dir := filepath.Join(root, "migrations")

	downs, err := migrationFiles(dir, ".down.sql")
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))
	ups, err := migrationFiles(dir, ".up.sql")
	if err != nil {
		return err
	}

	for _, path := range append(downs, ups...) {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func migrationFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique ULID for tests.
func UniqueID() string {
	return ulid.Make().String()
}

// UniqueToken generates a unique lowercase box token for tests.
func UniqueToken(prefix string) string {
	return fmt.Sprintf("%s%d%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// UniqueComplaintToken generates a unique, well-formed complaint token.
func UniqueComplaintToken() string {
	n := time.Now().UnixNano()%1_000_000_000 + seq.Add(1)
	return fmt.Sprintf("CPL-T%09d", n%1_000_000_000)
}

// NewTestProfile creates an admin profile with sensible defaults.
func NewTestProfile(t testing.TB) *model.Profile {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := UniqueID()
	return &model.Profile{
		ID:           id,
		Email:        strings.ToLower(id) + "@example.com",
		Username:     "admin-" + id[len(id)-6:],
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=4$dGVzdHNhbHQ$dGVzdGhhc2g",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestBox creates a password-free box owned by adminID.
func NewTestBox(t testing.TB, adminID string) *model.Box {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Box{
		ID:          UniqueID(),
		AdminID:     adminID,
		Title:       "Hostel block C",
		Description: "Maintenance issues",
		Token:       UniqueToken("box"),
		Category:    "hostel_maintenance",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestComplaint creates a received complaint in boxID.
func NewTestComplaint(t testing.TB, boxID string) *model.Complaint {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Complaint{
		ID:        UniqueID(),
		BoxID:     boxID,
		Title:     "Broken chair",
		Message:   "Leg is cracked",
		Status:    model.StatusReceived,
		Token:     UniqueComplaintToken(),
		Category:  "Furniture Issues",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
