package webhook

import (
	"net"
	"net/http"
	"time"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 15 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 10 * time.Second
)

// NewHTTPClient creates an HTTP client for webhook delivery.
// Redirects are never followed. Unless allowInsecure is set, connections to
// private addresses are refused at dial time.
func NewHTTPClient(allowInsecure bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	if !allowInsecure {
		dialer.Control = dialControl
	}
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Header names for webhook requests.
const (
	HeaderSignature = "X-TellUs-Signature"
	HeaderTimestamp = "X-TellUs-Timestamp"
	HeaderEvent     = "X-TellUs-Event"
	HeaderDelivery  = "X-TellUs-Delivery"
)

// Headers are the per-request webhook header values.
type Headers struct {
	Signature  string
	Timestamp  string
	EventType  string
	DeliveryID string
}

// SetHeaders applies webhook headers to an HTTP request.
func SetHeaders(req *http.Request, h Headers) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TellUs-Webhook/1.0")
	req.Header.Set(HeaderSignature, h.Signature)
	req.Header.Set(HeaderTimestamp, h.Timestamp)
	req.Header.Set(HeaderEvent, h.EventType)
	req.Header.Set(HeaderDelivery, h.DeliveryID)
}
