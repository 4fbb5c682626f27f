package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "image_upload",
		Name:      "uploads_accepted_total",
		Help:      "Uploads validated, stored, and announced.",
	})
	uploadsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "image_upload",
		Name:      "uploads_rejected_total",
		Help:      "Uploads rejected for invalid caller input.",
	})
	uploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "image_upload",
		Name:      "upload_failures_total",
		Help:      "Uploads that failed on storage or event publish.",
	})
)
