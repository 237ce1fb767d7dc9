package client

import (
	"sync"
	"time"
)

// SessionEvent names why the session changed.
type SessionEvent string

const (
	SessionSignedUp  SessionEvent = "signed_up"
	SessionSignedIn  SessionEvent = "signed_in"
	SessionSignedOut SessionEvent = "signed_out"
	SessionDeleted   SessionEvent = "account_deleted"
	// SessionExpired is reported when the server rejects the session.
	SessionExpired SessionEvent = "expired"
)

// SessionChange is passed to session subscribers. Token and ExpiresAt are
// zero when the client is no longer signed in.
type SessionChange struct {
	Event     SessionEvent
	Token     string
	ExpiresAt time.Time
}

// SignedIn reports whether the change leaves the client with a session.
func (s SessionChange) SignedIn() bool {
	return s.Token != ""
}

// OnSessionChange registers fn to be called after every session change.
// Subscribers run synchronously on the goroutine that caused the change,
// outside the client lock. The returned func unsubscribes and may be called
// any number of times.
func (c *Client) OnSessionChange(fn func(SessionChange)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) setSession(event SessionEvent, token string, expiresAt time.Time) {
	c.mu.Lock()
	c.session = token
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, SessionChange{Event: event, Token: token, ExpiresAt: expiresAt})
}

// dropSession clears the session if it is still the one a request was made
// with, so a stale 401 cannot sign out a newer session.
func (c *Client) dropSession(token string, event SessionEvent) {
	c.mu.Lock()
	if c.session == "" || c.session != token {
		c.mu.Unlock()
		return
	}
	c.session = ""
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, SessionChange{Event: event})
}

func (c *Client) subscribersLocked() []func(SessionChange) {
	subs := make([]func(SessionChange), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(SessionChange), change SessionChange) {
	for _, fn := range subs {
		fn(change)
	}
}
