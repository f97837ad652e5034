// Package metrics provides Prometheus instruments for the stamping service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lgtm"

var (
	// UploadsTotal counts upload attempts by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of upload attempts by outcome",
		},
		[]string{"outcome"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Duration of upload attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// ModerationVerdicts counts content gate decisions.
	ModerationVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_verdicts_total",
			Help:      "Content gate verdicts by result",
		},
		[]string{"result"},
	)

	QuotaFailOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_fail_open_total",
			Help:      "Quota ledger failures that let an upload through",
		},
		[]string{"operation"},
	)

	GalleryListFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_list_failures_total",
			Help:      "Gallery listings that failed and returned empty",
		},
	)

	AdminLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_logins_total",
			Help:      "Admin login attempts by result",
		},
		[]string{"result"},
	)
)

// RecordUpload records a finished upload attempt.
func RecordUpload(outcome string, seconds float64) {
	UploadsTotal.WithLabelValues(outcome).Inc()
	UploadDuration.WithLabelValues(outcome).Observe(seconds)
}

func RecordVerdict(result string) {
	ModerationVerdicts.WithLabelValues(result).Inc()
}

func RecordQuotaFailOpen(operation string) {
	QuotaFailOpen.WithLabelValues(operation).Inc()
}

func RecordGalleryListFailure() {
	GalleryListFailures.Inc()
}

func RecordAdminLogin(result string) {
	AdminLogins.WithLabelValues(result).Inc()
}
