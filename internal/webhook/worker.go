package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/model"
)

const (
	// DefaultBatchSize is the number of deliveries claimed per poll.
	DefaultBatchSize = 50
	// DefaultPollInterval is the time between polls for due deliveries.
	DefaultPollInterval = 5 * time.Second
	// DefaultMetricsInterval is how often to update queue depth metrics.
	DefaultMetricsInterval = 10 * time.Second
	// ClaimLease is how long a claimed delivery stays hidden from other
	// workers. It must exceed ClientTimeout.
	ClaimLease = 2 * time.Minute
)

// DeliveryStore is the persistence the worker needs.
type DeliveryStore interface {
	ClaimDueDeliveries(ctx context.Context, limit int, lease time.Duration) ([]DueDelivery, error)
	MarkDelivered(ctx context.Context, id string, statusCode int) error
	MarkFailed(ctx context.Context, id string, statusCode *int, errMsg string, nextRetryAt time.Time, exhausted bool) error
	QueueDepth(ctx context.Context) (int64, error)
}

// Worker polls for due deliveries and sends them.
type Worker struct {
	repo            DeliveryStore
	client          *http.Client
	logger          *slog.Logger
	metrics         metrics.Recorder
	batchSize       int
	pollInterval    time.Duration
	metricsInterval time.Duration
	lastMetrics     time.Time

	mu      sync.Mutex
	started bool
}

// NewWorker creates a new webhook delivery worker.
func NewWorker(repo DeliveryStore, client *http.Client, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if client == nil {
		client = NewHTTPClient(false)
	}
	return &Worker{
		repo:            repo,
		client:          client,
		logger:          logger.With("component", "webhook.worker"),
		metrics:         recorder,
		batchSize:       DefaultBatchSize,
		pollInterval:    DefaultPollInterval,
		metricsInterval: DefaultMetricsInterval,
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("webhook worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return nil
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// ProcessOnce claims and sends one batch of due deliveries.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	due, err := w.repo.ClaimDueDeliveries(ctx, w.batchSize, ClaimLease)
	if err != nil {
		return fmt.Errorf("claim due deliveries: %w", err)
	}

	for _, d := range due {
		if err := w.deliver(ctx, d); err != nil {
			w.logger.Warn("delivery bookkeeping failed",
				"delivery_id", d.Delivery.ID,
				"error", err,
			)
		}
	}
	return nil
}

// deliver sends a single webhook and records the outcome.
func (w *Worker) deliver(ctx context.Context, due DueDelivery) error {
	delivery := due.Delivery
	body := []byte(delivery.PayloadJSON)
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, due.TargetURL, bytes.NewReader(body))
	if err != nil {
		return w.handleFailure(ctx, delivery, nil, fmt.Sprintf("build request: %v", err))
	}
	SetHeaders(req, Headers{
		Signature:  GenerateSignature(due.SigningKey, timestamp, body),
		Timestamp:  strconv.FormatInt(timestamp, 10),
		EventType:  string(delivery.EventType),
		DeliveryID: delivery.ID,
	})

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return w.handleFailure(ctx, delivery, nil, err.Error())
	}
	defer resp.Body.Close()

	// Drain a little so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Info("webhook delivered",
			"delivery_id", delivery.ID,
			"target_host", ExtractHost(due.TargetURL),
			"http_status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		w.metrics.IncWebhookDelivery(string(model.DeliveryStatusSuccess))
		return w.repo.MarkDelivered(ctx, delivery.ID, resp.StatusCode)
	}

	code := resp.StatusCode
	return w.handleFailure(ctx, delivery, &code, fmt.Sprintf("HTTP %d", code))
}

// handleFailure records a failed attempt and schedules the next one.
func (w *Worker) handleFailure(ctx context.Context, delivery *model.WebhookDelivery, statusCode *int, errMsg string) error {
	attempts := delivery.AttemptCount + 1
	exhausted := IsExhausted(attempts, delivery.MaxAttempts)

	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}

	w.logger.Warn("webhook delivery failed",
		"delivery_id", delivery.ID,
		"attempt", attempts,
		"exhausted", exhausted,
		"error", errMsg,
	)
	w.metrics.IncWebhookDelivery(string(status))

	return w.repo.MarkFailed(ctx, delivery.ID, statusCode, errMsg, NextRetryAt(attempts), exhausted)
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := w.repo.QueueDepth(ctx)
	if err != nil {
		w.logger.Warn("failed to get queue depth", "error", err)
		return
	}
	w.metrics.SetWebhookQueueDepth(depth)
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetPollInterval overrides the default poll interval.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}
