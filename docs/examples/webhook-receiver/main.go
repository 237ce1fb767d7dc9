// TellUs Webhook Receiver Example
//
// This is a minimal example of how to receive and verify TellUs webhooks.
//
// Usage:
//   export TELLUS_WEBHOOK_SECRET="whsec_your_secret_here"
//   go run main.go
//
// Then register http://your-server:9000/webhook as a webhook endpoint for
// your box.

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Event is the envelope of every webhook delivery.
type Event struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func main() {
	secret := os.Getenv("TELLUS_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("TELLUS_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(signingKey(secret)))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting webhook receiver on :9000")
	log.Println("Endpoint: http://localhost:9000/webhook")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

// signingKey derives the HMAC key from the secret shown at endpoint creation.
func signingKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func webhookHandler(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("Error reading body: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		signature := r.Header.Get("X-TellUs-Signature")
		timestamp := r.Header.Get("X-TellUs-Timestamp")
		if signature == "" || timestamp == "" {
			log.Println("Missing X-TellUs-Signature or X-TellUs-Timestamp header")
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}

		if !verifySignature(key, signature, timestamp, body) {
			log.Println("Invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		var event Event
		if err := json.Unmarshal(body, &event); err != nil {
			log.Printf("Error parsing JSON: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("Received %s (delivery %s)", event.EventType, r.Header.Get("X-TellUs-Delivery"))
		log.Printf("  Box:       %v", event.Data["box_id"])
		log.Printf("  Complaint: %v", event.Data["complaint_token"])
		if status, ok := event.Data["status"]; ok {
			log.Printf("  Status:    %v", status)
		}
		if rating, ok := event.Data["rating"]; ok {
			log.Printf("  Rating:    %v", rating)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature checks the hex HMAC-SHA256 of "{timestamp}.{body}".
// Timestamps more than five minutes away from now are rejected.
func verifySignature(key, signature, timestamp string, body []byte) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(ts, 0))
	if age < -5*time.Minute || age > 5*time.Minute {
		log.Println("Signature timestamp too old or in future")
		return false
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
