package resizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huanshenyi/cdk-image-upload/internal/ingestion"
	"github.com/huanshenyi/cdk-image-upload/pkg/storage/objectstore"
)

// MessageSource is the fetch/commit surface the worker consumes
// notifications from. Satisfied by *kafka.Consumer.
type MessageSource interface {
	Fetch(ctx context.Context) (kafkago.Message, error)
	Commit(ctx context.Context, msgs ...kafkago.Message) error
}

// Worker turns object-created notifications into a fixed derivative set.
type Worker struct {
	originals objectstore.Client
	derived   objectstore.Client
	source    MessageSource
	specs     []DerivativeSpec
	backoff   time.Duration
	logger    *zap.Logger
}

type Params struct {
	Originals objectstore.Client
	Derived   objectstore.Client
	Source    MessageSource
	Specs     []DerivativeSpec
	Backoff   time.Duration
	Logger    *zap.Logger
}

// NewWorker constructs a Worker. Specs defaults to DefaultSpecs, Backoff to
// 500ms.
func NewWorker(p Params) *Worker {
	specs := p.Specs
	if len(specs) == 0 {
		specs = DefaultSpecs
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Worker{
		originals: p.Originals,
		derived:   p.Derived,
		source:    p.Source,
		specs:     specs,
		backoff:   backoff,
		logger:    p.Logger,
	}
}

// Handle processes one notification: fetch the original, write every resized
// variant plus a verbatim copy to the derived store, all concurrently. The
// invocation succeeds only if every write succeeds. Keys are deterministic,
// so re-running after a partial failure overwrites cleanly.
func (w *Worker) Handle(ctx context.Context, event ingestion.ObjectCreatedEvent) error {
	invocations.Inc()

	key, err := DecodeKey(event.Key)
	if err != nil {
		invocationFailures.Inc()
		return fmt.Errorf("decode object key %q: %w", event.Key, err)
	}

	obj, err := w.originals.Get(ctx, key)
	if err != nil {
		invocationFailures.Inc()
		return fmt.Errorf("get original %s: %w", key, err)
	}
	raw, err := io.ReadAll(obj.Body)
	obj.Body.Close()
	if err != nil {
		invocationFailures.Inc()
		return fmt.Errorf("read original %s: %w", key, err)
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = event.ContentType
	}

	img, format, err := Decode(raw)
	if err != nil {
		invocationFailures.Inc()
		return fmt.Errorf("original %s: %w", key, err)
	}

	var g errgroup.Group
	for _, spec := range w.specs {
		g.Go(func() error {
			out, err := Encode(FitInside(img, spec), format)
			if err != nil {
				return fmt.Errorf("resize %s for %s: %w", spec.Suffix, key, err)
			}
			dkey := DerivativeKey(key, spec.Suffix)
			if err := w.derived.Put(ctx, dkey, bytes.NewReader(out), int64(len(out)), contentType); err != nil {
				return fmt.Errorf("put derivative %s: %w", dkey, err)
			}
			derivativesWritten.Inc()
			return nil
		})
	}
	g.Go(func() error {
		// Pass-through copy under the unmodified key.
		if err := w.derived.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), contentType); err != nil {
			return fmt.Errorf("copy original %s: %w", key, err)
		}
		derivativesWritten.Inc()
		return nil
	})

	if err := g.Wait(); err != nil {
		invocationFailures.Inc()
		return err
	}

	w.logger.Info("derivatives written",
		zap.String("key", key),
		zap.Int("count", len(w.specs)+1),
	)
	return nil
}

// Run consumes notifications until ctx is done. Offsets are committed only
// after a fully successful invocation. A failed invocation is retried in
// place with backoff: committing any later message would advance the group
// offset past the failed one and it would never be redelivered. Malformed
// payloads are logged and committed so they do not wedge the partition.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.source.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch notification: %w", err)
		}

		var event ingestion.ObjectCreatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("malformed notification", zap.Error(err))
			if err := w.source.Commit(ctx, msg); err != nil {
				w.logger.Error("commit failed", zap.Error(err))
			}
			continue
		}

		for {
			err := w.Handle(ctx, event)
			if err == nil {
				break
			}
			w.logger.Error("resize invocation failed",
				zap.String("key", event.Key),
				zap.Duration("retry_in", w.backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.backoff):
			}
		}

		if err := w.source.Commit(ctx, msg); err != nil {
			w.logger.Error("commit failed", zap.String("key", event.Key), zap.Error(err))
		}
	}
}
