package metrics

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	HTTPRequests          map[string]uint64 // keyed by "METHOD route status"
	HTTPRequestTotalNs    int64
	BoxCacheHits          uint64
	BoxCacheMisses        uint64
	BoxLookupCount        uint64
	BoxLookupTotalNs      int64
	BoxesCreated          uint64
	BoxesUpdated          uint64
	BoxesDeleted          uint64
	ComplaintsSubmitted   uint64
	ComplaintsDeleted     uint64
	FeedbackSubmitted     uint64
	StatusChanges         map[string]uint64
	GateAttempts          map[string]uint64
	AnalyticsPublished    map[string]uint64
	AnalyticsProcessed    map[string]uint64
	AnalyticsBatchCount   uint64
	AnalyticsBatchEvents  uint64
	AnalyticsBatchTotalNs int64
	AnalyticsQueueDepth   int64
	WebhookDeliveries     map[string]uint64
	WebhookQueueDepth     int64
}

// labeled is a counter family keyed by one label value.
type labeled struct {
	mu sync.Mutex
	m  map[string]uint64
}

func (l *labeled) inc(label string) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]uint64)
	}
	l.m[label]++
	l.mu.Unlock()
}

func (l *labeled) snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.m))
	maps.Copy(out, l.m)
	return out
}

// InMemoryRecorder keeps metrics in process memory.
type InMemoryRecorder struct {
	httpRequestTotalNs    atomic.Int64
	boxCacheHits          atomic.Uint64
	boxCacheMisses        atomic.Uint64
	boxLookupCount        atomic.Uint64
	boxLookupTotalNs      atomic.Int64
	boxesCreated          atomic.Uint64
	boxesUpdated          atomic.Uint64
	boxesDeleted          atomic.Uint64
	complaintsSubmitted   atomic.Uint64
	complaintsDeleted     atomic.Uint64
	feedbackSubmitted     atomic.Uint64
	analyticsBatchCount   atomic.Uint64
	analyticsBatchEvents  atomic.Uint64
	analyticsBatchTotalNs atomic.Int64
	analyticsQueueDepth   atomic.Int64
	webhookQueueDepth     atomic.Int64

	httpRequests       labeled
	statusChanges      labeled
	gateAttempts       labeled
	analyticsPublished labeled
	analyticsProcessed labeled
	webhookDeliveries  labeled
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		HTTPRequests:          m.httpRequests.snapshot(),
		HTTPRequestTotalNs:    m.httpRequestTotalNs.Load(),
		BoxCacheHits:          m.boxCacheHits.Load(),
		BoxCacheMisses:        m.boxCacheMisses.Load(),
		BoxLookupCount:        m.boxLookupCount.Load(),
		BoxLookupTotalNs:      m.boxLookupTotalNs.Load(),
		BoxesCreated:          m.boxesCreated.Load(),
		BoxesUpdated:          m.boxesUpdated.Load(),
		BoxesDeleted:          m.boxesDeleted.Load(),
		ComplaintsSubmitted:   m.complaintsSubmitted.Load(),
		ComplaintsDeleted:     m.complaintsDeleted.Load(),
		FeedbackSubmitted:     m.feedbackSubmitted.Load(),
		StatusChanges:         m.statusChanges.snapshot(),
		GateAttempts:          m.gateAttempts.snapshot(),
		AnalyticsPublished:    m.analyticsPublished.snapshot(),
		AnalyticsProcessed:    m.analyticsProcessed.snapshot(),
		AnalyticsBatchCount:   m.analyticsBatchCount.Load(),
		AnalyticsBatchEvents:  m.analyticsBatchEvents.Load(),
		AnalyticsBatchTotalNs: m.analyticsBatchTotalNs.Load(),
		AnalyticsQueueDepth:   m.analyticsQueueDepth.Load(),
		WebhookDeliveries:     m.webhookDeliveries.snapshot(),
		WebhookQueueDepth:     m.webhookQueueDepth.Load(),
	}
}

// ObserveHTTPRequest counts a request under its route pattern.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.inc(fmt.Sprintf("%s %s %d", method, route, status))
	m.httpRequestTotalNs.Add(d.Nanoseconds())
}

func (m *InMemoryRecorder) IncBoxCacheHit() { m.boxCacheHits.Add(1) }
func (m *InMemoryRecorder) IncBoxCacheMiss() { m.boxCacheMisses.Add(1) }

// ObserveBoxLookupDuration records the latency of a public box lookup.
func (m *InMemoryRecorder) ObserveBoxLookupDuration(d time.Duration) {
	m.boxLookupCount.Add(1)
	m.boxLookupTotalNs.Add(d.Nanoseconds())
}

func (m *InMemoryRecorder) IncBoxCreated() { m.boxesCreated.Add(1) }
func (m *InMemoryRecorder) IncBoxUpdated() { m.boxesUpdated.Add(1) }
func (m *InMemoryRecorder) IncBoxDeleted() { m.boxesDeleted.Add(1) }
func (m *InMemoryRecorder) IncComplaintSubmitted() { m.complaintsSubmitted.Add(1) }
func (m *InMemoryRecorder) IncComplaintStatusChanged(s string) { m.statusChanges.inc(s) }
func (m *InMemoryRecorder) IncComplaintDeleted() { m.complaintsDeleted.Add(1) }
func (m *InMemoryRecorder) IncFeedbackSubmitted() { m.feedbackSubmitted.Add(1) }
func (m *InMemoryRecorder) IncGateAttempt(result string) { m.gateAttempts.inc(result) }

func (m *InMemoryRecorder) IncAnalyticsEventPublished(status string) {
	m.analyticsPublished.inc(status)
}

func (m *InMemoryRecorder) IncAnalyticsEventProcessed(status string) {
	m.analyticsProcessed.inc(status)
}

// ObserveAnalyticsBatchSize records how many events a batch held.
func (m *InMemoryRecorder) ObserveAnalyticsBatchSize(size int) {
	m.analyticsBatchCount.Add(1)
	m.analyticsBatchEvents.Add(uint64(size))
}

func (m *InMemoryRecorder) ObserveAnalyticsBatchDuration(d time.Duration) {
	m.analyticsBatchTotalNs.Add(d.Nanoseconds())
}

func (m *InMemoryRecorder) SetAnalyticsQueueDepth(depth int64) { m.analyticsQueueDepth.Store(depth) }
func (m *InMemoryRecorder) IncWebhookDelivery(status string) { m.webhookDeliveries.inc(status) }
func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64) { m.webhookQueueDepth.Store(depth) }
