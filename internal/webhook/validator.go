package webhook

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

var (
	// ErrInvalidScheme is returned when URL scheme is not HTTPS.
	ErrInvalidScheme = errors.New("only HTTPS allowed")
	// ErrPrivateIP is returned when URL resolves to private IP.
	ErrPrivateIP = errors.New("private IP addresses not allowed")
	// ErrLocalhostBlocked is returned when localhost is used.
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	// ErrInvalidPort is returned when non-standard port is used.
	ErrInvalidPort = errors.New("only port 443 allowed")
	// ErrInvalidURL is returned when URL parsing fails.
	ErrInvalidURL = errors.New("invalid URL format")
	// ErrEmptyHost is returned when URL has no host.
	ErrEmptyHost = errors.New("URL must have a host")
)

// blockedPrefixes are private, loopback and link-local ranges.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Validator checks target URLs against SSRF. With AllowInsecure, plain
// HTTP and private addresses are accepted; that mode is for local
// development only.
type Validator struct {
	AllowInsecure bool
	Resolver      Resolver
}

// NewValidator returns a Validator using the default resolver.
func NewValidator(allowInsecure bool) *Validator {
	return &Validator{AllowInsecure: allowInsecure, Resolver: net.DefaultResolver}
}

// ValidateTargetURL checks a webhook URL before it is stored.
func (v *Validator) ValidateTargetURL(ctx context.Context, targetURL string) error {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return ErrInvalidURL
	}

	host := parsed.Hostname()
	if v.AllowInsecure {
		if parsed.Scheme != "https" && parsed.Scheme != "http" {
			return ErrInvalidScheme
		}
		if host == "" {
			return ErrEmptyHost
		}
		return nil
	}

	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}
	if host == "" {
		return ErrEmptyHost
	}
	if isLocalhostHostname(host) {
		return ErrLocalhostBlocked
	}
	if port := parsed.Port(); port != "" && port != "443" {
		return ErrInvalidPort
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return ErrPrivateIP
		}
		return nil
	}

	addrs, err := v.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		// Unresolvable now; the dial guard rejects it at delivery time
		// if it later points somewhere private.
		return nil
	}
	for _, addr := range addrs {
		if isBlockedAddr(addr) {
			return ErrPrivateIP
		}
	}
	return nil
}

// dialControl rejects connections to blocked addresses after DNS
// resolution, closing the rebinding gap left by ValidateTargetURL.
func dialControl(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return err
	}
	if isBlockedAddr(ap.Addr()) {
		return ErrPrivateIP
	}
	return nil
}

func isLocalhostHostname(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local")
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractHost extracts the host from a URL for logging. Paths and queries
// may carry credentials and are never logged.
func ExtractHost(targetURL string) string {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
