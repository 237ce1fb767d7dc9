// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Gate attempt outcomes.
const (
	GateAccepted = "accepted"
	GateRejected = "rejected"
	GateLimited  = "limited"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// HTTP
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Public box lookups
	IncBoxCacheHit()
	IncBoxCacheMiss()
	ObserveBoxLookupDuration(duration time.Duration)

	// Box management
	IncBoxCreated()
	IncBoxUpdated()
	IncBoxDeleted()

	// Submissions
	IncComplaintSubmitted()
	IncComplaintStatusChanged(status string)
	IncComplaintDeleted()
	IncFeedbackSubmitted()
	IncGateAttempt(result string)

	// Analytics pipeline
	IncAnalyticsEventPublished(status string) // "success" or "dropped"
	IncAnalyticsEventProcessed(status string) // "success", "failed", "dead_lettered"
	ObserveAnalyticsBatchSize(size int)
	ObserveAnalyticsBatchDuration(duration time.Duration)
	SetAnalyticsQueueDepth(depth int64)

	// Webhooks
	IncWebhookDelivery(status string) // "success", "failed", "exhausted"
	SetWebhookQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
