package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

const SegmenterNone = "none"

type S3Config struct {
	EndpointURL     string `env:"ENDPOINT_URL"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
}

// Config is shared by the api, worker and local binaries. MODEL_DIR and
// KNOWLEDGE_PATH accept either local paths or s3://bucket/key locations.
type Config struct {
	Port string `env:"PORT" envDefault:"8000"`

	ModelDir         string `env:"MODEL_DIR" envDefault:"./artifacts/model"`
	KnowledgePath    string `env:"KNOWLEDGE_PATH" envDefault:"./artifacts/knowledge_db.json"`
	SegmenterModel   string `env:"SEGMENTER_MODEL"`
	SegmenterPlugin  string `env:"SEGMENTER_PLUGIN"`
	// Segmenter=none classifies photos with their background kept. Only meant
	// for inputs that are already cut out.
	Segmenter        string `env:"SEGMENTER"`
	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB"`
	CacheDir         string `env:"CACHE_DIR" envDefault:"./cache"`

	GradCAMLayer        string `env:"GRADCAM_LAYER" envDefault:"fused_reduce"`
	GradCAMMode         string `env:"GRADCAM_MODE" envDefault:"gradcam++"`
	TopK                int    `env:"TOP_K" envDefault:"3"`
	TextureChannelOrder string `env:"TEXTURE_CHANNEL_ORDER" envDefault:"unsharp,gabor,lbp"`

	DatabaseURL       string   `env:"DATABASE_URL" envDefault:"file:leaf.db"`
	RabbitMQURL       string   `env:"RABBITMQ_URL"`
	S3                S3Config `envPrefix:"S3_"`
	StorageDir        string   `env:"STORAGE_DIR" envDefault:"./storage"`
	WorkerConcurrency int      `env:"WORKER_CONCURRENCY" envDefault:"4"`

	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.S3.EndpointURL != "" && (cfg.S3.AccessKeyID == "" || cfg.S3.SecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set, but S3_ACCESS_KEY_ID or S3_SECRET_ACCESS_KEY are missing")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ModelDir == "" {
		return fmt.Errorf("MODEL_DIR must be set")
	}
	if c.KnowledgePath == "" {
		return fmt.Errorf("KNOWLEDGE_PATH must be set")
	}
	if c.SegmenterModel != "" && c.SegmenterPlugin != "" {
		return fmt.Errorf("only one of SEGMENTER_MODEL and SEGMENTER_PLUGIN may be set")
	}
	switch c.Segmenter {
	case "":
		if c.SegmenterModel == "" && c.SegmenterPlugin == "" {
			return fmt.Errorf("one of SEGMENTER_MODEL or SEGMENTER_PLUGIN must be set, or SEGMENTER=none to skip background removal")
		}
	case SegmenterNone:
		if c.SegmenterModel != "" || c.SegmenterPlugin != "" {
			return fmt.Errorf("SEGMENTER=none conflicts with SEGMENTER_MODEL or SEGMENTER_PLUGIN")
		}
	default:
		return fmt.Errorf("invalid SEGMENTER %q, the only accepted value is %q", c.Segmenter, SegmenterNone)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, found %d", c.MaxUploadBytes)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, found %d", c.WorkerConcurrency)
	}
	return nil
}

// UsesS3 reports whether an S3 endpoint was configured or any artifact lives
// in an object store.
func (c *Config) UsesS3() bool {
	return c.S3.EndpointURL != "" || strings.HasPrefix(c.ModelDir, "s3://") || strings.HasPrefix(c.KnowledgePath, "s3://")
}

func (c *Config) SegmentationDisabled() bool {
	return c.Segmenter == SegmenterNone
}
