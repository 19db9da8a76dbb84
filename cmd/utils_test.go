package cmd

import (
	"testing"

	"leaf-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSegmenterRefusesMissingSegmenter(t *testing.T) {
	seg, closer, err := loadSegmenter(&config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no segmenter configured")
	assert.Nil(t, seg)
	assert.Nil(t, closer)
}

func TestLoadSegmenterExplicitPassThrough(t *testing.T) {
	seg, closer, err := loadSegmenter(&config.Config{Segmenter: config.SegmenterNone})
	require.NoError(t, err)
	assert.Nil(t, seg)
	assert.Nil(t, closer)
}
