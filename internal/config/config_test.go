package config_test

import (
	"testing"

	"leaf-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEGMENTER_MODEL", "u2net.onnx")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "fused_reduce", cfg.GradCAMLayer)
	assert.Equal(t, "gradcam++", cfg.GradCAMMode)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, "unsharp,gabor,lbp", cfg.TextureChannelOrder)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.UsesS3())
	assert.False(t, cfg.SegmentationDisabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MODEL_DIR", "s3://models/leaf/v2")
	t.Setenv("S3_ENDPOINT_URL", "http://localhost:9000")
	t.Setenv("S3_ACCESS_KEY_ID", "admin")
	t.Setenv("S3_SECRET_ACCESS_KEY", "password")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")
	t.Setenv("TOP_K", "5")
	t.Setenv("SEGMENTER_PLUGIN", "./segmenter")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "s3://models/leaf/v2", cfg.ModelDir)
	assert.Equal(t, "admin", cfg.S3.AccessKeyID)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.TopK)
	assert.True(t, cfg.UsesS3())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Run("BadInteger", func(t *testing.T) {
		t.Setenv("SEGMENTER", "none")
		t.Setenv("TOP_K", "three")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("BothSegmenters", func(t *testing.T) {
		t.Setenv("SEGMENTER_MODEL", "u2net.onnx")
		t.Setenv("SEGMENTER_PLUGIN", "./segmenter")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("ZeroUploadLimit", func(t *testing.T) {
		t.Setenv("SEGMENTER", "none")
		t.Setenv("MAX_UPLOAD_BYTES", "0")
		_, err := config.Load()
		assert.Error(t, err)
	})
}

func TestLoadRequiresSegmenter(t *testing.T) {
	t.Run("NoneConfigured", func(t *testing.T) {
		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SEGMENTER=none")
	})

	t.Run("ExplicitOptOut", func(t *testing.T) {
		t.Setenv("SEGMENTER", "none")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.True(t, cfg.SegmentationDisabled())
	})

	t.Run("OptOutWithModel", func(t *testing.T) {
		t.Setenv("SEGMENTER", "none")
		t.Setenv("SEGMENTER_MODEL", "u2net.onnx")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("UnknownValue", func(t *testing.T) {
		t.Setenv("SEGMENTER", "rembg")
		_, err := config.Load()
		assert.Error(t, err)
	})
}
