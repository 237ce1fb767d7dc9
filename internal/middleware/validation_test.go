package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

func TestRequireContentType(t *testing.T) {
	handler := RequireContentType(MediaJSON, MediaMultipart)(okHandler())

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		wantStatus  int
	}{
		{"json", http.MethodPost, `{}`, "application/json; charset=utf-8", http.StatusOK},
		{"multipart", http.MethodPost, "--x--", "multipart/form-data; boundary=x", http.StatusOK},
		{"form rejected", http.MethodPost, "a=b", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"missing type rejected", http.MethodPatch, `{}`, "", http.StatusUnsupportedMediaType},
		{"get passes", http.MethodGet, "", "", http.StatusOK},
		{"empty post passes", http.MethodPost, "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/auth/login", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireIDParams(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireIDParams("id")).Get("/complaints/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"ulid", ulid.Make().String(), http.StatusOK},
		{"garbage", "not-an-id", http.StatusNotFound},
		{"sql-ish", "1%27%20OR%201%3D1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/complaints/"+tt.id, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
