// Package ledger keeps the submitter-side record of which tracking tokens
// were submitted from this device. It is advisory only: the server never
// consults it.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Key is the fixed store key the entry list lives under.
const Key = "myComplaints"

var (
	// ErrNotFound is returned by a Store when the key is absent.
	ErrNotFound = errors.New("key not found")

	// ErrCorrupt reports a stored entry list that cannot be decoded.
	// The ledger refuses to append to it until Reset is called.
	ErrCorrupt = errors.New("ledger is unreadable")
)

// Store is a minimal local key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Entry records one submission.
type Entry struct {
	Token      string    `json:"token"`
	BoxID      string    `json:"boxId"`
	RecordedAt time.Time `json:"recordedAt,omitempty"`
}

// Ledger is an append-only list of entries kept in a Store.
// Entries are never deduplicated or expired.
type Ledger struct {
	store Store
	now   func() time.Time
	mu    sync.Mutex
}

// New creates a ledger over store.
func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Record appends a submission. It fails with ErrCorrupt instead of
// replacing an unreadable list.
func (l *Ledger) Record(ctx context.Context, boxID, token string) error {
	if boxID == "" || token == "" {
		return errors.New("ledger: box id and token are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, Entry{Token: token, BoxID: boxID, RecordedAt: l.now().UTC()})

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := l.store.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// ListForBox returns the entries recorded for boxID, oldest first.
func (l *Ledger) ListForBox(ctx context.Context, boxID string) ([]Entry, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.BoxID == boxID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns every recorded entry, oldest first.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Tokens returns the tokens of entries, preserving order.
func Tokens(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Token
	}
	return out
}

func (l *Ledger) load(ctx context.Context) ([]Entry, error) {
	data, err := l.store.Get(ctx, Key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entries, nil
}

// Reset replaces the stored list with an empty one, discarding every entry.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Put(ctx, Key, []byte("[]")); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}
