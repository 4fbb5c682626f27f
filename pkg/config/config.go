package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for a pipeline service.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Kafka   KafkaConfig
	Storage StorageConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Upload  UploadConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"image-upload"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	ObjectsTopic     string        `env:"KAFKA_OBJECTS_TOPIC" envDefault:"image.objects.created"`
	ConsumerGroup    string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"image-resizer"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	RetryBackoff     time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

type StorageConfig struct {
	Provider       string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint       string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region         string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	OriginalBucket string `env:"STORAGE_ORIGINAL_BUCKET" envDefault:"images-original"`
	ResizedBucket  string `env:"STORAGE_RESIZED_BUCKET" envDefault:"images-resized"`
	AccessKey      string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey      string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL         bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=image-upload"`
}

type MetricsConfig struct {
	Addr string `env:"METRICS_ADDR" envDefault:":9102"`
}

type UploadConfig struct {
	MaxSizeBytes int64 `env:"UPLOAD_MAX_SIZE_BYTES" envDefault:"10485760"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
