package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/huanshenyi/cdk-image-upload/internal/resizer"
	"github.com/huanshenyi/cdk-image-upload/pkg/config"
	"github.com/huanshenyi/cdk-image-upload/pkg/kafka"
	"github.com/huanshenyi/cdk-image-upload/pkg/logger"
	"github.com/huanshenyi/cdk-image-upload/pkg/storage/objectstore"
	"github.com/huanshenyi/cdk-image-upload/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, "resizer")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name + "-resizer",
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	originals, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.OriginalBucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init original store", zap.Error(err))
	}

	derived, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.ResizedBucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init derived store", zap.Error(err))
	}

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ObjectsTopic,
		GroupID: cfg.Kafka.ConsumerGroup,
	})
	defer consumer.Close() //nolint:errcheck

	worker := resizer.NewWorker(resizer.Params{
		Originals: originals,
		Derived:   derived,
		Source:    consumer,
		Specs:     resizer.DefaultSpecs,
		Backoff:   cfg.Kafka.RetryBackoff,
		Logger:    logr,
	})

	go serveMetrics(cfg.Metrics.Addr, logr)

	logr.Info("resizer worker starting",
		zap.String("topic", cfg.Kafka.ObjectsTopic),
		zap.String("group", cfg.Kafka.ConsumerGroup),
	)
	if err := worker.Run(ctx); err != nil {
		logr.Fatal("resizer worker failed", zap.Error(err))
	}
	logr.Info("resizer worker stopped")
}

func serveMetrics(addr string, logr *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logr.Error("metrics listener failed", zap.Error(err))
	}
}

func parseResourceAttributes(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	attrs := map[string]string{}
	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return attrs
}
