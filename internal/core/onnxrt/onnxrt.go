// Package onnxrt owns the process wide onnxruntime environment shared by the
// classifier and the segmenter.
package onnxrt

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the onnxruntime shared library once per process. Later calls
// return the result of the first one regardless of libPath.
func Init(libPath string) error {
	initOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("failed to initialize onnx environment: %w", err)
			return
		}
		slog.Info("onnx runtime initialized", "version", ort.GetVersion(), "library", libPath)
	})
	return initErr
}

// Describe lists the input and output names of a model file.
func Describe(modelPath string) (inputs, outputs []ort.InputOutputInfo, err error) {
	inputs, outputs, err = ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading io info of %s: %w", modelPath, err)
	}
	return inputs, outputs, nil
}

func Names(infos []ort.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// Float32Output copies the data of an output value produced by a dynamic
// session and releases it.
func Float32Output(v ort.Value) (shape []int64, data []float32, err error) {
	if v == nil {
		return nil, nil, fmt.Errorf("missing output value")
	}
	defer v.Destroy()
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor output, found %T", v)
	}
	shape = t.GetShape()
	data = make([]float32, len(t.GetData()))
	copy(data, t.GetData())
	return shape, data, nil
}
