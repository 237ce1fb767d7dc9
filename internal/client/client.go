// Package client is a typed HTTP client for the TellUs API.
//
// A Client carries the admin session token and any box access grants it has
// obtained, and optionally records submitted complaints in a local ledger so
// "my complaints" can be listed later. It is safe for concurrent use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/ledger"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the API.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsValidation reports whether err is a 400 from the API.
func IsValidation(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsRateLimited reports whether err is a 429 from the API.
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// ErrNoSession is returned by admin calls made without a session.
var ErrNoSession = errors.New("not signed in")

// Client talks to one TellUs server.
type Client struct {
	baseURL string
	http    *http.Client
	ledger  *ledger.Ledger

	mu      sync.Mutex
	session string
	grants  map[string]string // box share token -> grant
	boxIDs  map[string]string // box share token -> box id
	subs    map[uint64]func(SessionChange)
	nextSub uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLedger records every successful submission in l.
func WithLedger(l *ledger.Ledger) Option {
	return func(c *Client) { c.ledger = l }
}

// WithSession starts the client signed in with a previously issued token.
func WithSession(token string) Option {
	return func(c *Client) { c.session = token }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		grants:  make(map[string]string),
		boxIDs:  make(map[string]string),
		subs:    make(map[uint64]func(SessionChange)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionToken returns the current session token, or "".
func (c *Client) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetGrant stores an access grant for a box share token.
func (c *Client) SetGrant(boxToken, grant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if grant == "" {
		delete(c.grants, boxToken)
		return
	}
	c.grants[boxToken] = grant
}

// Grant returns the stored access grant for a box share token, or "".
func (c *Client) Grant(boxToken string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grants[boxToken]
}

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values

	// body is JSON encoded unless raw is set.
	body        any
	raw         io.Reader
	contentType string

	// grantFor attaches the stored grant of that box token.
	grantFor string
	// auth attaches the session token and treats a 401 as session loss.
	auth bool
}

// do performs req and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var body io.Reader
	contentType := req.contentType
	switch {
	case req.raw != nil:
		body = req.raw
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	var session string
	if req.auth {
		session = c.SessionToken()
		if session == "" {
			return ErrNoSession
		}
		httpReq.Header.Set("Authorization", "Bearer "+session)
	}
	if req.grantFor != "" {
		if grant := c.Grant(req.grantFor); grant != "" {
			httpReq.Header.Set(gate.GrantHeader, grant)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		if req.auth && resp.StatusCode == http.StatusUnauthorized {
			c.dropSession(session, SessionExpired)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	var body dto.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
