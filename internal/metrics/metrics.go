// Package metrics exposes Prometheus counters for form submissions, vendor
// API calls, tracking events and script delivery.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
)

// Script sources.
const (
	SourceFile     = "file"
	SourceS3       = "s3"
	SourceCache    = "cache"
	SourceStub     = "stub"
	SourceNotFound = "not_found"
)

var (
	namespace = "klaviyo"

	formSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_submissions_total",
			Help:      "Form submissions by outcome",
		},
		[]string{"outcome"},
	)

	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Vendor subscription API attempts by HTTP status (\"error\" for transport failures)",
		},
		[]string{"status"},
	)

	trackingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_events_total",
			Help:      "Tracking events by delivery status",
		},
		[]string{"status"},
	)

	scriptRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdn",
			Name:      "script_requests_total",
			Help:      "Script requests by the source that served them",
		},
		[]string{"source"},
	)
)

// RecordSubmission counts one form submission outcome.
func RecordSubmission(outcome string) {
	formSubmissions.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest counts one vendor API call. status 0 means transport failure.
func RecordAPIRequest(status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequests.WithLabelValues(label).Inc()
}

// RecordTrackingEvent counts a tracking event by status (queued/tracked/dropped).
func RecordTrackingEvent(status string) {
	trackingEvents.WithLabelValues(status).Inc()
}

// RecordScriptRequest counts a script request by serving source.
func RecordScriptRequest(source string) {
	scriptRequests.WithLabelValues(source).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
