// Command segmenter serves the background removal model as a go-plugin
// binary. Point SEGMENTER_PLUGIN at it to keep the segmentation model out of
// the server process.
package main

import (
	"log"
	"os"

	"leaf-backend/internal/core/onnxrt"
	"leaf-backend/internal/core/preprocess"
	"leaf-backend/plugin/shared"

	"github.com/hashicorp/go-plugin"
)

func main() {
	modelPath := os.Getenv("SEGMENTER_MODEL")
	if modelPath == "" {
		log.Fatalf("SEGMENTER_MODEL must be set")
	}

	if err := onnxrt.Init(os.Getenv("ONNX_RUNTIME_DYLIB")); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}

	segmenter, err := preprocess.NewOnnxSegmenter(modelPath, preprocess.DefaultSegmenterSize)
	if err != nil {
		log.Fatalf("could not load segmenter: %v", err)
	}
	defer segmenter.Close()

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: shared.Handshake,
		Plugins: map[string]plugin.Plugin{
			shared.PluginName: &shared.SegmenterPlugin{Impl: preprocess.FrameSegmenter{Segmenter: segmenter}},
		},
	})
}
