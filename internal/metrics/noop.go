package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
func (n *NoopRecorder) IncBoxCacheHit() {}
func (n *NoopRecorder) IncBoxCacheMiss() {}
func (n *NoopRecorder) ObserveBoxLookupDuration(time.Duration) {}
func (n *NoopRecorder) IncBoxCreated() {}
func (n *NoopRecorder) IncBoxUpdated() {}
func (n *NoopRecorder) IncBoxDeleted() {}
func (n *NoopRecorder) IncComplaintSubmitted() {}
func (n *NoopRecorder) IncComplaintStatusChanged(string) {}
func (n *NoopRecorder) IncComplaintDeleted() {}
func (n *NoopRecorder) IncFeedbackSubmitted() {}
func (n *NoopRecorder) IncGateAttempt(string) {}
func (n *NoopRecorder) IncAnalyticsEventPublished(string) {}
func (n *NoopRecorder) IncAnalyticsEventProcessed(string) {}
func (n *NoopRecorder) ObserveAnalyticsBatchSize(int) {}
func (n *NoopRecorder) ObserveAnalyticsBatchDuration(time.Duration) {}
func (n *NoopRecorder) SetAnalyticsQueueDepth(int64) {}
func (n *NoopRecorder) IncWebhookDelivery(string) {}
func (n *NoopRecorder) SetWebhookQueueDepth(int64) {}
