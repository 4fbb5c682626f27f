package ingestion

import "time"

// ObjectCreatedEvent is emitted when an original image is accepted and stored.
// The resizer consumes it as its invocation trigger.
type ObjectCreatedEvent struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
