package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/model"
)

// ConsumerGroup is the Redis consumer group shared by analytics workers.
const ConsumerGroup = "analytics_workers"

// Dead-letter reasons.
const (
	reasonNoPayload = "invalid_format"
	reasonDecode    = "unmarshal_error"
	reasonInvalid   = "validation_error"
)

// Repository rebuilds daily analytics rows.
type Repository interface {
	RecomputeDays(ctx context.Context, keys []model.DayKey) error
}

// Fanout receives every processed event, e.g. to queue webhook deliveries.
// It must be idempotent per event id: redelivered batches are fanned out again.
type Fanout interface {
	PublishEvent(ctx context.Context, event model.BoxEvent) error
}

// WorkerConfig tunes the worker. Zero fields take the defaults.
type WorkerConfig struct {
	// BatchSize caps the events read per batch (default 200).
	BatchSize int
	// Block is how long a read waits for new events (default 5s).
	Block time.Duration
	// Attempts is how often a batch is recomputed before it is left
	// pending for a later reclaim (default 3).
	Attempts int
	// UpkeepEvery is the interval for reclaiming idle pending events and
	// refreshing the queue depth gauge (default 10s).
	UpkeepEvery time.Duration
	// ReclaimIdle is how long an event stays pending before another
	// consumer may take it over (default 30s).
	ReclaimIdle time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.UpkeepEvery <= 0 {
		c.UpkeepEvery = 10 * time.Second
	}
	if c.ReclaimIdle <= 0 {
		c.ReclaimIdle = 30 * time.Second
	}
	return c
}

// Worker consumes box events, recomputes the affected daily rows and hands
// the events to the fanout.
type Worker struct {
	redis      *redis.Client
	repo       Repository
	fanout     Fanout
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string
	cfg        WorkerConfig

	reclaimFrom string
	lastUpkeep  time.Time
}

// NewWorker creates an analytics worker. fanout and recorder may be nil.
func NewWorker(client *redis.Client, repo Repository, fanout Fanout, logger *slog.Logger, consumerID string, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:       client,
		repo:        repo,
		fanout:      fanout,
		logger:      logger.With("component", "analytics.worker", "consumer_id", consumerID),
		metrics:     recorder,
		consumerID:  consumerID,
		cfg:         cfg.withDefaults(),
		reclaimFrom: "0-0",
	}
}

// Run consumes events until ctx is cancelled. A batch in flight when ctx
// ends stays pending and is reclaimed by the next worker.
func (w *Worker) Run(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("analytics worker started")

	for ctx.Err() == nil {
		if err := w.step(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("analytics step failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	w.logger.Info("analytics worker stopped")
	return nil
}

// step handles one batch: reclaimed events first, otherwise new ones.
func (w *Worker) step(ctx context.Context) error {
	messages := w.upkeep(ctx)
	if len(messages) == 0 {
		var err error
		if messages, err = w.read(ctx); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	events, ids := w.decode(ctx, messages)
	if len(events) > 0 {
		if err := w.recomputeWithRetry(ctx, events); err != nil {
			// Left unacked; upkeep reclaims them once idle.
			return err
		}
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// upkeep runs at most once per UpkeepEvery. It refreshes the queue depth
// gauge and returns pending events idle for longer than ReclaimIdle.
func (w *Worker) upkeep(ctx context.Context) []redis.XMessage {
	if !w.lastUpkeep.IsZero() && time.Since(w.lastUpkeep) < w.cfg.UpkeepEvery {
		return nil
	}
	w.lastUpkeep = time.Now()

	if groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result(); err == nil {
		for _, g := range groups {
			if g.Name == ConsumerGroup {
				w.metrics.SetAnalyticsQueueDepth(g.Pending + g.Lag)
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		w.logger.Warn("read consumer group info", "error", err)
	}

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.cfg.ReclaimIdle,
		Start:    w.reclaimFrom,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("reclaim pending events", "error", err)
		return nil
	}
	if next != "" {
		w.reclaimFrom = next
	}
	if len(messages) > 0 {
		w.logger.Info("reclaimed pending events", "count", len(messages))
	}
	return messages
}

func (w *Worker) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// decode returns the valid events of messages and the ids of every message.
// Undecodable or invalid messages go to the dead-letter stream.
func (w *Worker) decode(ctx context.Context, messages []redis.XMessage) ([]model.BoxEvent, []string) {
	events := make([]model.BoxEvent, 0, len(messages))
	ids := make([]string, 0, len(messages))

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		payload, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetter(ctx, msg, reasonNoPayload, "payload field missing or not a string")
			continue
		}
		var event model.BoxEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			w.deadLetter(ctx, msg, reasonDecode, err.Error())
			continue
		}
		if err := ValidateEvent(event); err != nil {
			w.deadLetter(ctx, msg, reasonInvalid, err.Error())
			continue
		}
		events = append(events, event)
	}
	return events, ids
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering box event", "message_id", msg.ID, "reason", reason, "detail", detail)
	w.metrics.IncAnalyticsEventProcessed("dead_lettered")

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: MaxStreamLen / 10,
		Approx: true,
		Values: map[string]any{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("write dead-letter stream", "message_id", msg.ID, "error", err)
	}
}

// recomputeWithRetry rebuilds the rows of events, backing off 2s, 4s, ...
// between attempts.
func (w *Worker) recomputeWithRetry(ctx context.Context, events []model.BoxEvent) error {
	keys := UniqueDayKeys(events)
	start := time.Now()

	var err error
	for attempt := 1; attempt <= w.cfg.Attempts; attempt++ {
		if err = w.repo.RecomputeDays(ctx, keys); err == nil {
			break
		}
		w.logger.Warn("recompute daily rows failed", "attempt", attempt, "days", len(keys), "error", err)
		if attempt == w.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
	if err != nil {
		for range events {
			w.metrics.IncAnalyticsEventProcessed("failed")
		}
		return fmt.Errorf("recompute %d days: %w", len(keys), err)
	}

	if w.fanout != nil {
		for _, event := range events {
			// Webhook failures must not hold analytics back.
			if err := w.fanout.PublishEvent(ctx, event); err != nil {
				w.logger.Warn("event fanout failed", "event_id", event.ID, "event_type", event.Type, "error", err)
			}
		}
	}

	w.metrics.ObserveAnalyticsBatchSize(len(events))
	w.metrics.ObserveAnalyticsBatchDuration(time.Since(start))
	for range events {
		w.metrics.IncAnalyticsEventProcessed("success")
	}
	w.logger.Debug("batch processed", "events", len(events), "days", len(keys))
	return nil
}

// UniqueDayKeys returns the distinct (box, day) pairs of events in first
// occurrence order.
func UniqueDayKeys(events []model.BoxEvent) []model.DayKey {
	seen := make(map[model.DayKey]struct{}, len(events))
	keys := make([]model.DayKey, 0, len(events))
	for i := range events {
		key := events[i].DayKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// isConsumerGroupExistsError reports a BUSYGROUP reply.
func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
