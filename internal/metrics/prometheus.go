package metrics

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

// WritePrometheus renders snap in the Prometheus text exposition format.
func WritePrometheus(w io.Writer, snap Snapshot) error {
	bw := bufio.NewWriter(w)

	counter := func(name, help string, v uint64) {
		fmt.Fprintf(bw, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(bw, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
	}
	family := func(name, help, label string, m map[string]uint64) {
		fmt.Fprintf(bw, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
		for _, k := range sortedKeys(m) {
			fmt.Fprintf(bw, "%s{%s=%q} %d\n", name, label, k, m[k])
		}
	}

	fmt.Fprintf(bw, "# HELP tellus_http_requests_total HTTP requests by method, route and status.\n# TYPE tellus_http_requests_total counter\n")
	for _, k := range sortedKeys(snap.HTTPRequests) {
		parts := strings.SplitN(k, " ", 3)
		if len(parts) != 3 {
			continue
		}
		fmt.Fprintf(bw, "tellus_http_requests_total{method=%q,route=%q,status=%q} %d\n",
			parts[0], parts[1], parts[2], snap.HTTPRequests[k])
	}

	counter("tellus_box_cache_hits_total", "Public box lookups served from cache.", snap.BoxCacheHits)
	counter("tellus_box_cache_misses_total", "Public box lookups that hit the database.", snap.BoxCacheMisses)
	counter("tellus_boxes_created_total", "Complaint boxes created.", snap.BoxesCreated)
	counter("tellus_boxes_deleted_total", "Complaint boxes deleted.", snap.BoxesDeleted)
	counter("tellus_complaints_submitted_total", "Complaints submitted.", snap.ComplaintsSubmitted)
	counter("tellus_complaints_deleted_total", "Complaints deleted by admins.", snap.ComplaintsDeleted)
	counter("tellus_feedback_submitted_total", "Feedback entries submitted.", snap.FeedbackSubmitted)
	family("tellus_complaint_status_changes_total", "Complaint status changes by new status.", "status", snap.StatusChanges)
	family("tellus_gate_attempts_total", "Box unlock attempts by result.", "result", snap.GateAttempts)
	family("tellus_analytics_events_published_total", "Box events published to the stream.", "status", snap.AnalyticsPublished)
	family("tellus_analytics_events_processed_total", "Box events processed by the worker.", "status", snap.AnalyticsProcessed)
	counter("tellus_analytics_batches_total", "Analytics batches processed.", snap.AnalyticsBatchCount)
	gauge("tellus_analytics_queue_depth", "Pending plus unread events in the stream.", snap.AnalyticsQueueDepth)
	family("tellus_webhook_deliveries_total", "Webhook delivery attempts by outcome.", "status", snap.WebhookDeliveries)
	gauge("tellus_webhook_queue_depth", "Webhook deliveries awaiting an attempt.", snap.WebhookQueueDepth)

	return bw.Flush()
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
