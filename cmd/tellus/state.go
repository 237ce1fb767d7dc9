package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/tellus/tellus/internal/client"
	"github.com/tellus/tellus/internal/ledger"
)

// Keys in the local store next to the ledger.
const (
	sessionKey = "session"
	grantsKey  = "grants"
)

// state is the CLI's local storage and API client for one invocation.
type state struct {
	store  *ledger.SQLiteStore
	ledger *ledger.Ledger
	client *client.Client

	unsubscribe func()
	mu          sync.Mutex
	persistErr  error
}

func defaultHome() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".tellus")
	}
	return ".tellus"
}

// openState opens the local store under home and builds a client that
// resumes the stored session and box grants.
func openState(ctx context.Context, apiURL, home string, hc *http.Client) (*state, error) {
	store, err := ledger.OpenSQLite(filepath.Join(home, "ledger.db"))
	if err != nil {
		return nil, err
	}

	submissions := ledger.New(store)
	opts := []client.Option{client.WithLedger(submissions)}
	if hc != nil {
		opts = append(opts, client.WithHTTPClient(hc))
	}
	if token, err := store.Get(ctx, sessionKey); err == nil && len(token) > 0 {
		opts = append(opts, client.WithSession(string(token)))
	} else if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		store.Close()
		return nil, err
	}

	s := &state{store: store, ledger: submissions, client: client.New(apiURL, opts...)}

	grants, err := s.loadGrants(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	for boxToken, grant := range grants {
		s.client.SetGrant(boxToken, grant)
	}

	s.unsubscribe = s.client.OnSessionChange(func(change client.SessionChange) {
		var err error
		if change.SignedIn() {
			err = store.Put(ctx, sessionKey, []byte(change.Token))
		} else {
			err = store.Delete(ctx, sessionKey)
		}
		if err != nil {
			s.mu.Lock()
			s.persistErr = errors.Join(s.persistErr, fmt.Errorf("save session: %w", err))
			s.mu.Unlock()
		}
	})
	return s, nil
}

func (s *state) loadGrants(ctx context.Context) (map[string]string, error) {
	grants := make(map[string]string)
	data, err := s.store.Get(ctx, grantsKey)
	if errors.Is(err, ledger.ErrNotFound) {
		return grants, nil
	}
	if err != nil {
		return nil, err
	}
	// Unreadable grants are dropped; the box can be unlocked again.
	_ = json.Unmarshal(data, &grants)
	return grants, nil
}

// saveGrant stores the grant for a box token.
func (s *state) saveGrant(ctx context.Context, boxToken, grant string) error {
	grants, err := s.loadGrants(ctx)
	if err != nil {
		return err
	}
	grants[boxToken] = grant
	data, err := json.Marshal(grants)
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}
	return s.store.Put(ctx, grantsKey, data)
}

// Close stops persisting session changes and closes the store. It reports
// any session write that failed during the command.
func (s *state) Close() error {
	s.unsubscribe()
	s.mu.Lock()
	err := s.persistErr
	s.mu.Unlock()
	return errors.Join(err, s.store.Close())
}
