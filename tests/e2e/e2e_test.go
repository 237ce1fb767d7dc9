//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/webhook"
)

type sessionResponse struct {
	Token   string        `json:"token"`
	Profile model.Profile `json:"profile"`
}

type boxResponse struct {
	ID             string `json:"id"`
	Token          string `json:"token"`
	Title          string `json:"title"`
	RequiresSecret bool   `json:"requires_secret"`
}

type boxView struct {
	Token  string `json:"token"`
	Title  string `json:"title"`
	Locked bool   `json:"locked"`
}

type submitted struct {
	TrackingToken string       `json:"tracking_token"`
	Status        model.Status `json:"status"`
}

type tracked struct {
	Token      string       `json:"token"`
	Title      string       `json:"title"`
	Status     model.Status `json:"status"`
	AdminReply string       `json:"admin_reply"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type webhookCreateResponse struct {
	Endpoint model.WebhookEndpoint `json:"endpoint"`
	Secret   string                `json:"secret"`
}

type webhookRequest struct {
	Headers http.Header
	Body    []byte
}

func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("TELLUS_BASE_URL", "http://localhost:8080")

	session := signUp(t, baseURL)
	box := createBox(t, baseURL, session, "abc123")

	// Visitors see a locked box until they unlock it.
	var view boxView
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/boxes/"+box.Token, nil, nil, &view); status != http.StatusOK {
		t.Fatalf("expected 200 from box view, got %d", status)
	}
	if !view.Locked {
		t.Fatalf("protected box should be locked without a grant")
	}

	var rejected errorResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/boxes/"+box.Token+"/unlock", nil,
		map[string]string{"secret": "abc124"}, &rejected)
	if status != http.StatusForbidden || rejected.Code != "GATE_REJECTED" {
		t.Fatalf("wrong secret: got %d %q", status, rejected.Code)
	}

	var grant gate.Grant
	status = doJSON(t, http.MethodPost, baseURL+"/api/v1/boxes/"+box.Token+"/unlock", nil,
		map[string]string{"secret": "abc123"}, &grant)
	if status != http.StatusOK || grant.Token == "" {
		t.Fatalf("unlock: got %d", status)
	}
	access := http.Header{gate.GrantHeader: []string{grant.Token}}

	var receipt submitted
	status = doJSON(t, http.MethodPost, baseURL+"/api/v1/boxes/"+box.Token+"/complaints", access, map[string]string{
		"title":    "Broken chair",
		"message":  "The chair in room 12 has a cracked leg.",
		"category": "Furniture Issues",
	}, &receipt)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from submit, got %d", status)
	}
	if receipt.Status != model.StatusReceived || !strings.HasPrefix(receipt.TrackingToken, "CPL-") {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	trackComplaint(t, baseURL, receipt.TrackingToken, model.StatusReceived, "")

	complaintID := findComplaint(t, baseURL, session, box.ID, "Broken chair")

	webhookURL, deliveries, shutdown := startWebhookReceiver(t)
	defer shutdown()
	secret := createWebhookEndpoint(t, baseURL, session, box.ID, webhookURL)

	if status := doJSON(t, http.MethodPatch, baseURL+"/api/v1/admin/complaints/"+complaintID+"/status", bearer(session),
		map[string]string{"status": "solved"}, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from status change, got %d", status)
	}
	if status := doJSON(t, http.MethodPut, baseURL+"/api/v1/admin/complaints/"+complaintID+"/reply", bearer(session),
		map[string]string{"reply": "Replaced on Monday."}, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from reply, got %d", status)
	}

	trackComplaint(t, baseURL, receipt.TrackingToken, model.StatusSolved, "Replaced on Monday.")

	if status := doJSON(t, http.MethodPost, baseURL+"/api/v1/boxes/"+box.Token+"/feedback", access,
		map[string]any{"rating": 5, "message": "Quick fix"}, nil); status != http.StatusCreated {
		t.Fatalf("expected 201 from feedback, got %d", status)
	}

	waitForAnalytics(t, baseURL, session, box.ID)
	waitForWebhookDelivery(t, deliveries, webhook.HashSecret(secret), receipt.TrackingToken)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func signUp(t *testing.T, baseURL string) string {
	t.Helper()

	suffix := strconv.FormatInt(time.Now().UnixNano(), 36)
	payload := map[string]string{
		"username":         "e2e-" + suffix,
		"email":            "e2e-" + suffix + "@example.com",
		"password":         "correct-horse-battery",
		"confirm_password": "correct-horse-battery",
	}

	var resp sessionResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/signup", nil, payload, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from signup, got %d", status)
	}
	if resp.Token == "" || resp.Profile.ID == "" {
		t.Fatalf("signup response missing fields")
	}
	return resp.Token
}

func createBox(t *testing.T, baseURL, session, secret string) boxResponse {
	t.Helper()

	payload := map[string]string{
		"title":       "Hostel block C",
		"description": "Maintenance issues",
		"category":    "hostel_maintenance",
		"secret":      secret,
	}

	var resp boxResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/admin/boxes", bearer(session), payload, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from box create, got %d", status)
	}
	if resp.ID == "" || resp.Token == "" {
		t.Fatalf("box create response missing fields")
	}
	if resp.RequiresSecret != (secret != "") {
		t.Fatalf("requires_secret = %v", resp.RequiresSecret)
	}
	return resp
}

func trackComplaint(t *testing.T, baseURL, token string, want model.Status, reply string) {
	t.Helper()

	var resp tracked
	status := doJSON(t, http.MethodGet, baseURL+"/api/v1/track/"+token, nil, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from track, got %d", status)
	}
	if resp.Status != want || resp.AdminReply != reply {
		t.Fatalf("tracked complaint = %+v, want status %s reply %q", resp, want, reply)
	}
}

func findComplaint(t *testing.T, baseURL, session, boxID, title string) string {
	t.Helper()

	var resp struct {
		Data []model.Complaint `json:"data"`
	}
	url := fmt.Sprintf("%s/api/v1/admin/boxes/%s/complaints?q=%s", baseURL, boxID, strings.ReplaceAll(title, " ", "+"))
	if status := doJSON(t, http.MethodGet, url, bearer(session), nil, &resp); status != http.StatusOK {
		t.Fatalf("expected 200 from complaint list, got %d", status)
	}
	for _, c := range resp.Data {
		if c.Title == title {
			return c.ID
		}
	}
	t.Fatalf("complaint %q not listed", title)
	return ""
}

func waitForAnalytics(t *testing.T, baseURL, session, boxID string) {
	t.Helper()

	endpoint := fmt.Sprintf("%s/api/v1/admin/boxes/%s/analytics?range=week", baseURL, boxID)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var resp model.AnalyticsSummary
		status := doJSON(t, http.MethodGet, endpoint, bearer(session), nil, &resp)
		if status == http.StatusOK && resp.TotalComplaints >= 1 && resp.TotalFeedbacks >= 1 {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}

	t.Fatalf("analytics did not report the complaint in time")
}

func startWebhookReceiver(t *testing.T) (string, <-chan webhookRequest, func()) {
	t.Helper()

	received := make(chan webhookRequest, 4)

	listener, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("listen webhook: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		select {
		case received <- webhookRequest{Headers: r.Header.Clone(), Body: body}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Handler: handler}
	go func() {
		_ = srv.Serve(listener)
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	host := envOrDefault("E2E_WEBHOOK_HOST", "host.docker.internal")
	url := fmt.Sprintf("http://%s:%d/webhook", host, port)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}

	return url, received, shutdown
}

func createWebhookEndpoint(t *testing.T, baseURL, session, boxID, targetURL string) string {
	t.Helper()

	payload := map[string]any{
		"box_id":      boxID,
		"name":        "e2e-webhook",
		"target_url":  targetURL,
		"event_types": []string{string(model.EventComplaintStatusChanged)},
	}

	var resp webhookCreateResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/admin/webhooks", bearer(session), payload, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from webhook create, got %d", status)
	}
	if resp.Endpoint.ID == "" || resp.Secret == "" {
		t.Fatalf("webhook create response missing fields")
	}
	return resp.Secret
}

func waitForWebhookDelivery(t *testing.T, deliveries <-chan webhookRequest, signingKey, complaintToken string) {
	t.Helper()

	select {
	case req := <-deliveries:
		for _, h := range []string{webhook.HeaderSignature, webhook.HeaderTimestamp, webhook.HeaderEvent, webhook.HeaderDelivery} {
			if req.Headers.Get(h) == "" {
				t.Fatalf("missing %s header", h)
			}
		}

		ts, err := strconv.ParseInt(req.Headers.Get(webhook.HeaderTimestamp), 10, 64)
		if err != nil {
			t.Fatalf("bad timestamp header: %v", err)
		}
		if err := webhook.ValidateSignature(signingKey, req.Headers.Get(webhook.HeaderSignature), ts, req.Body, webhook.DefaultReplayWindow); err != nil {
			t.Fatalf("signature check: %v", err)
		}

		var payload model.WebhookPayload
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			t.Fatalf("decode webhook payload: %v", err)
		}
		if payload.EventType != model.EventComplaintStatusChanged {
			t.Fatalf("unexpected event_type %q", payload.EventType)
		}
		if payload.Data["complaint_token"] != complaintToken || payload.Data["status"] != "solved" {
			t.Fatalf("unexpected webhook data %v", payload.Data)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for webhook delivery")
	}
}

func doJSON(t *testing.T, method, url string, headers http.Header, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode
}

// TestE2EOpenBox covers a box without a secret: no grant is needed, and a
// visitor can find their own complaints again by tracking token.
func TestE2EOpenBox(t *testing.T) {
	baseURL := envOrDefault("TELLUS_BASE_URL", "http://localhost:8080")

	session := signUp(t, baseURL)
	box := createBox(t, baseURL, session, "")

	var receipt submitted
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/boxes/"+box.Token+"/complaints", nil, map[string]string{
		"title":   "Noisy corridor",
		"message": "Every night after 11pm.",
	}, &receipt)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from submit, got %d", status)
	}

	var mine struct {
		Data  []tracked `json:"data"`
		Total int       `json:"total"`
	}
	url := fmt.Sprintf("%s/api/v1/boxes/%s/complaints?tokens=%s,CPL-NOTMINE0", baseURL, box.Token, receipt.TrackingToken)
	if status := doJSON(t, http.MethodGet, url, nil, nil, &mine); status != http.StatusOK {
		t.Fatalf("expected 200 from mine, got %d", status)
	}
	if mine.Total != 1 || mine.Data[0].Token != receipt.TrackingToken {
		t.Fatalf("mine = %+v", mine)
	}
}

// TestE2ERateLimiting validates that anonymous submissions are limited per IP.
// The limiter runs before box lookup, so an unknown box still counts. Run it
// last: it exhausts the caller's submission budget.
func TestE2ERateLimiting(t *testing.T) {
	baseURL := envOrDefault("TELLUS_BASE_URL", "http://localhost:8080")

	client := &http.Client{Timeout: 10 * time.Second}
	var lastResp *http.Response

	for i := 0; i < 30; i++ {
		payload := fmt.Sprintf(`{"title":"Flood %d","message":"spam"}`, i)
		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/boxes/e2e-no-such-box/complaints", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastResp = resp
			break
		}
		resp.Body.Close()
	}

	if lastResp == nil {
		t.Fatalf("expected 429 after burst, but never hit rate limit")
	}
	defer lastResp.Body.Close()

	if lastResp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("missing X-RateLimit-Limit header on 429 response")
	}
	if got := lastResp.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining=0, got %s", got)
	}
	if lastResp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429 response")
	}

	var errResp errorResponse
	if err := json.NewDecoder(lastResp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode 429 response: %v", err)
	}
	if errResp.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", errResp.Code)
	}
}
