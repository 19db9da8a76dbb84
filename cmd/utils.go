package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"leaf-backend/internal/config"
	"leaf-backend/internal/core"
	"leaf-backend/internal/core/inference"
	"leaf-backend/internal/core/onnxrt"
	"leaf-backend/internal/core/preprocess"
	"leaf-backend/internal/core/saliency"
	"leaf-backend/internal/knowledge"
	"leaf-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// NewObjectStore returns an S3 store when an endpoint or an s3:// artifact is
// configured, and a directory backed store otherwise.
func NewObjectStore(cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.UsesS3() {
		slog.Info("using s3 object store", "endpoint", cfg.S3.EndpointURL, "region", cfg.S3.Region)
		return storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3.EndpointURL,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	}
	slog.Info("using local object store", "dir", cfg.StorageDir)
	return storage.NewLocalObjectStore(cfg.StorageDir)
}

// ResolveModelDir downloads an s3:// model artifact into the cache directory
// and returns the local directory to load it from.
func ResolveModelDir(ctx context.Context, cfg *config.Config, store storage.ObjectStore) (string, error) {
	if !storage.IsRemote(cfg.ModelDir) {
		return cfg.ModelDir, nil
	}

	loc, err := storage.ParseLocation(cfg.ModelDir)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(cfg.CacheDir, "models", loc.Bucket, filepath.FromSlash(loc.Key))
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return "", fmt.Errorf("error creating model cache dir: %w", err)
	}

	slog.Info("downloading model artifact", "source", loc.String(), "dest", dest)
	if err := store.DownloadDir(ctx, loc.Bucket, loc.Key, dest, true); err != nil {
		return "", fmt.Errorf("error downloading model artifact %s: %w", loc.String(), err)
	}
	return dest, nil
}

type closer interface {
	Close()
}

func loadSegmenter(cfg *config.Config) (preprocess.Segmenter, closer, error) {
	switch {
	case cfg.SegmenterModel != "":
		seg, err := preprocess.NewOnnxSegmenter(cfg.SegmenterModel, preprocess.DefaultSegmenterSize)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading segmenter model: %w", err)
		}
		return seg, seg, nil
	case cfg.SegmenterPlugin != "":
		seg, err := preprocess.LoadPluginSegmenter(cfg.SegmenterPlugin)
		if err != nil {
			return nil, nil, fmt.Errorf("error starting segmenter plugin: %w", err)
		}
		return seg, seg, nil
	case cfg.SegmentationDisabled():
		slog.Warn("SEGMENTER=none, images are classified without background removal")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("no segmenter configured: set SEGMENTER_MODEL, SEGMENTER_PLUGIN or SEGMENTER=none")
	}
}

// LoadPipeline initializes onnxruntime, loads the classifier, segmenter and
// knowledge table, and binds them into an analysis pipeline. The returned func
// releases the native resources.
func LoadPipeline(ctx context.Context, cfg *config.Config, store storage.ObjectStore) (*core.Pipeline, func(), error) {
	if err := onnxrt.Init(cfg.OnnxRuntimeDylib); err != nil {
		return nil, nil, err
	}

	order, err := preprocess.ParseTextureOrder(cfg.TextureChannelOrder)
	if err != nil {
		return nil, nil, err
	}
	mode, err := saliency.ParseMode(cfg.GradCAMMode)
	if err != nil {
		return nil, nil, err
	}

	modelDir, err := ResolveModelDir(ctx, cfg, store)
	if err != nil {
		return nil, nil, err
	}

	classifier, err := inference.NewArtifactLoader(modelDir).Get()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading model from %s: %w", modelDir, err)
	}

	if !classifier.HasLayer(cfg.GradCAMLayer) {
		classifier.Close()
		return nil, nil, fmt.Errorf("%w: %q, available layers: %v", inference.ErrLayerNotFound, cfg.GradCAMLayer, classifier.Layers())
	}

	segmenter, segCloser, err := loadSegmenter(cfg)
	if err != nil {
		classifier.Close()
		return nil, nil, err
	}

	table, err := knowledge.Load(ctx, cfg.KnowledgePath, store)
	if err != nil {
		if segCloser != nil {
			segCloser.Close()
		}
		classifier.Close()
		return nil, nil, err
	}

	pipelineCfg := core.DefaultConfig()
	pipelineCfg.Texture.Order = order
	pipelineCfg.Layer = cfg.GradCAMLayer
	pipelineCfg.Mode = mode
	if cfg.TopK > 0 {
		pipelineCfg.TopK = cfg.TopK
	}

	pipeline := core.NewPipeline(classifier, segmenter, table, pipelineCfg)

	cleanup := func() {
		if segCloser != nil {
			segCloser.Close()
		}
		classifier.Close()
	}
	return pipeline, cleanup, nil
}
