package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/huanshenyi/cdk-image-upload/pkg/storage/objectstore"
)

// Client input errors. The HTTP layer maps these to 400 responses; anything
// else is a server error.
var (
	ErrMissingImage       = errors.New("image is required")
	ErrMissingContentType = errors.New("contentType is required")
	ErrBadEncoding        = errors.New("image is not valid base64")
)

// EventPublisher emits object-created notifications. Satisfied by
// *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
}

// Service accepts uploads, stores originals, and notifies the resizer.
type Service struct {
	store     objectstore.Client
	publisher EventPublisher
	bucket    string
	logger    *zap.Logger
}

type Params struct {
	Store     objectstore.Client
	Publisher EventPublisher
	Bucket    string
	Logger    *zap.Logger
}

// UploadRequest is one decoded upload submission.
type UploadRequest struct {
	Image       string `json:"image"`
	ContentType string `json:"contentType"`
}

type UploadResult struct {
	ImageID    string
	URL        string
	SizeBytes  int64
	UploadedAt time.Time
}

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Store,
		publisher: p.Publisher,
		bucket:    p.Bucket,
		logger:    p.Logger,
	}
}

// ProcessUpload validates and decodes the submitted image, writes it to the
// original store under a fresh key, and publishes an ObjectCreatedEvent.
// Nothing is written until validation and decoding have succeeded.
func (s *Service) ProcessUpload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Image == "" {
		return nil, ErrMissingImage
	}
	if req.ContentType == "" {
		return nil, ErrMissingContentType
	}

	data, err := base64.StdEncoding.DecodeString(stripDataURIPrefix(req.Image))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}

	key := uuid.NewString() + "." + ExtensionFor(req.ContentType)

	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), req.ContentType); err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	now := time.Now().UTC()
	event := ObjectCreatedEvent{
		Bucket: s.bucket,
		// Escaped the way bucket notifications escape keys; the resizer
		// unescapes before fetching, so "+" and "%" in extensions like
		// svg+xml survive the round trip.
		Key:         url.QueryEscape(key),
		ContentType: req.ContentType,
		SizeBytes:   int64(len(data)),
		CreatedAt:   now,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal object created event: %w", err)
	}

	headers := map[string]string{
		"event_type": "object.created",
	}

	if err := s.publisher.Publish(ctx, []byte(key), payload, headers); err != nil {
		return nil, fmt.Errorf("publish object created event: %w", err)
	}

	s.logger.Info("original stored",
		zap.String("key", key),
		zap.String("content_type", req.ContentType),
		zap.Int("size_bytes", len(data)),
	)

	return &UploadResult{
		ImageID:    key,
		URL:        "/images/" + key,
		SizeBytes:  int64(len(data)),
		UploadedAt: now,
	}, nil
}

// IsClientError reports whether err stems from invalid caller input rather
// than a pipeline fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingImage) ||
		errors.Is(err, ErrMissingContentType) ||
		errors.Is(err, ErrBadEncoding)
}

// ExtensionFor derives a file extension from a MIME content type: the
// subtype after the slash, passed through verbatim. Parameters after a
// semicolon are dropped. A type with no slash is returned as is.
func ExtensionFor(contentType string) string {
	ext := contentType
	if _, sub, ok := strings.Cut(contentType, "/"); ok {
		ext = sub
	}
	if base, _, ok := strings.Cut(ext, ";"); ok {
		ext = base
	}
	return strings.TrimSpace(ext)
}

// stripDataURIPrefix removes a leading "data:<mime>;base64," wrapper so the
// remainder is plain base64.
func stripDataURIPrefix(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	const marker = ";base64,"
	if i := strings.Index(s, marker); i >= 0 {
		return s[i+len(marker):]
	}
	return s
}

// Close releases underlying resources.
func (s *Service) Close() error {
	return s.store.Close()
}
