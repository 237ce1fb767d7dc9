package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/model"
)

type stubRepo struct {
	err   error
	calls int
	keys  []model.DayKey
}

func (r *stubRepo) RecomputeDays(_ context.Context, keys []model.DayKey) error {
	r.calls++
	r.keys = keys
	return r.err
}

type stubFanout struct {
	err error
	ids []string
}

func (f *stubFanout) PublishEvent(_ context.Context, e model.BoxEvent) error {
	f.ids = append(f.ids, e.ID)
	return f.err
}

// offlineWorker builds a worker whose Redis client never connects.
func offlineWorker(t *testing.T, repo Repository, fanout Fanout, rec metrics.Recorder, cfg WorkerConfig) *Worker {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return NewWorker(client, repo, fanout, discardLogger(), "test-consumer", rec, cfg)
}

func TestWorkerConfigDefaults(t *testing.T) {
	t.Parallel()

	got := WorkerConfig{}.withDefaults()
	want := WorkerConfig{BatchSize: 200, Block: 5 * time.Second, Attempts: 3, UpkeepEvery: 10 * time.Second, ReclaimIdle: 30 * time.Second}
	if got != want {
		t.Fatalf("defaults = %+v, want %+v", got, want)
	}

	custom := WorkerConfig{BatchSize: 10, Block: time.Millisecond}.withDefaults()
	if custom.BatchSize != 10 || custom.Block != time.Millisecond || custom.Attempts != 3 {
		t.Fatalf("custom config overridden: %+v", custom)
	}
}

func TestDecode_DeadLettersPoisonMessages(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	w := offlineWorker(t, &stubRepo{}, nil, rec, WorkerConfig{})

	good, err := json.Marshal(validComplaintEvent())
	if err != nil {
		t.Fatal(err)
	}
	invalid := validComplaintEvent()
	invalid.BoxID = ""
	bad, err := json.Marshal(invalid)
	if err != nil {
		t.Fatal(err)
	}

	messages := []redis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": string(good)}},
		{ID: "2-0", Values: map[string]any{"other": "x"}},
		{ID: "3-0", Values: map[string]any{"payload": "{"}},
		{ID: "4-0", Values: map[string]any{"payload": string(bad)}},
	}

	events, ids := w.decode(context.Background(), messages)
	if len(events) != 1 || events[0].ID != validComplaintEvent().ID {
		t.Fatalf("events = %+v, want only the valid event", events)
	}
	if len(ids) != 4 {
		t.Fatalf("ids = %v, want every message id so poison is acked", ids)
	}
	if got := rec.Snapshot().AnalyticsProcessed["dead_lettered"]; got != 3 {
		t.Errorf("dead_lettered = %d, want 3", got)
	}
}

func TestRecompute_FansOutAfterRows(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	repo := &stubRepo{}
	fan := &stubFanout{err: errors.New("webhook store down")}
	w := offlineWorker(t, repo, fan, rec, WorkerConfig{})

	first := validComplaintEvent()
	second := first
	second.ID = "01J0000000000000000000000B"
	second.Type = model.EventComplaintReplied

	if err := w.recomputeWithRetry(context.Background(), []model.BoxEvent{first, second}); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if repo.calls != 1 || len(repo.keys) != 1 {
		t.Fatalf("repo calls=%d keys=%v, want one call with one day", repo.calls, repo.keys)
	}
	if len(fan.ids) != 2 {
		t.Fatalf("fanned out %v, want both events despite fanout errors", fan.ids)
	}
	if got := rec.Snapshot().AnalyticsProcessed["success"]; got != 2 {
		t.Errorf("success = %d, want 2", got)
	}
}

func TestRecompute_FailureSkipsFanout(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	repo := &stubRepo{err: errors.New("db down")}
	fan := &stubFanout{}
	w := offlineWorker(t, repo, fan, rec, WorkerConfig{Attempts: 1})

	err := w.recomputeWithRetry(context.Background(), []model.BoxEvent{validComplaintEvent()})
	if !errors.Is(err, repo.err) {
		t.Fatalf("err = %v, want wrapped repo error", err)
	}
	if len(fan.ids) != 0 {
		t.Errorf("fanned out %v after a failed recompute", fan.ids)
	}
	if got := rec.Snapshot().AnalyticsProcessed["failed"]; got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestRun_ReportsGroupSetupFailure(t *testing.T) {
	t.Parallel()

	w := offlineWorker(t, &stubRepo{}, nil, nil, WorkerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Run(ctx); err == nil {
		t.Fatal("Run with an unreachable Redis returned nil")
	}
}
