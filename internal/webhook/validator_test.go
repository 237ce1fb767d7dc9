package webhook

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

type fakeResolver map[string][]netip.Addr

func (f fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addrs, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func newTestValidator(allowInsecure bool) *Validator {
	return &Validator{
		AllowInsecure: allowInsecure,
		Resolver: fakeResolver{
			"example.com":      {netip.MustParseAddr("93.184.216.34")},
			"api.example.com":  {netip.MustParseAddr("93.184.216.35")},
			"internal.example": {netip.MustParseAddr("10.1.2.3")},
			"v6.example":       {netip.MustParseAddr("fd00::1")},
		},
	}
}

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"valid https url", "https://example.com/webhook", nil},
		{"valid https with path", "https://api.example.com/v1/webhooks", nil},
		{"port 443 allowed", "https://example.com:443/webhook", nil},
		{"unresolvable host deferred to dial", "https://nowhere.invalid/hook", nil},
		{"http not allowed", "http://example.com/webhook", ErrInvalidScheme},
		{"ftp not allowed", "ftp://example.com/webhook", ErrInvalidScheme},
		{"localhost blocked", "https://localhost/webhook", ErrLocalhostBlocked},
		{".local domain blocked", "https://myserver.local/webhook", ErrLocalhostBlocked},
		{"loopback literal blocked", "https://127.0.0.1/webhook", ErrPrivateIP},
		{"ipv6 loopback blocked", "https://[::1]/webhook", ErrPrivateIP},
		{"private literal blocked", "https://192.168.1.10/webhook", ErrPrivateIP},
		{"metadata address blocked", "https://169.254.169.254/latest", ErrPrivateIP},
		{"resolves to private", "https://internal.example/hook", ErrPrivateIP},
		{"resolves to ula", "https://v6.example/hook", ErrPrivateIP},
		{"non-standard port blocked", "https://example.com:8443/webhook", ErrInvalidPort},
		{"empty host", "https:///webhook", ErrEmptyHost},
		{"unparseable", "://bad", ErrInvalidURL},
	}

	v := newTestValidator(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTargetURL(context.Background(), tt.url)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTargetURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTargetURL_AllowInsecure(t *testing.T) {
	v := newTestValidator(true)

	for _, u := range []string{"http://localhost:9000/hook", "http://10.0.0.5/hook", "https://example.com:8443/x"} {
		if err := v.ValidateTargetURL(context.Background(), u); err != nil {
			t.Errorf("ValidateTargetURL(%q) = %v, want nil in insecure mode", u, err)
		}
	}
	if err := v.ValidateTargetURL(context.Background(), "ftp://example.com"); !errors.Is(err, ErrInvalidScheme) {
		t.Errorf("ftp should still be rejected, got %v", err)
	}
}

func TestDialControl(t *testing.T) {
	if err := dialControl("tcp", "10.0.0.1:443", nil); !errors.Is(err, ErrPrivateIP) {
		t.Errorf("private address should be refused, got %v", err)
	}
	if err := dialControl("tcp", "[::ffff:127.0.0.1]:443", nil); !errors.Is(err, ErrPrivateIP) {
		t.Errorf("mapped loopback should be refused, got %v", err)
	}
	if err := dialControl("tcp", "93.184.216.34:443", nil); err != nil {
		t.Errorf("public address refused: %v", err)
	}
}

func TestExtractHost(t *testing.T) {
	if got := ExtractHost("https://hooks.example.com/secret/path?token=x"); got != "hooks.example.com" {
		t.Errorf("ExtractHost = %q", got)
	}
	if got := ExtractHost("://bad"); got != "(invalid)" {
		t.Errorf("ExtractHost(bad) = %q", got)
	}
}
