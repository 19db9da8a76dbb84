// Package inference loads the trained tri-branch classifier and exposes the
// forward and gradient passes the rest of the service needs.
package inference

import (
	"errors"
	"fmt"

	"leaf-backend/internal/core/types"
)

var (
	ErrLayerNotFound     = errors.New("layer not found")
	ErrUnregisteredLayer = errors.New("unregistered custom layer")
	ErrInvalidInputs     = errors.New("invalid network inputs")
)

// Inputs are the normalized [1,H,W,3] tensors of the three branches.
type Inputs struct {
	RGB     types.Tensor
	Vein    types.Tensor
	Texture types.Tensor
}

// ByModality returns the tensor feeding the given branch.
func (in Inputs) ByModality(m types.Modality) types.Tensor {
	switch m {
	case types.Vein:
		return in.Vein
	case types.Texture:
		return in.Texture
	default:
		return in.RGB
	}
}

// Validate checks that all three tensors are [1,H,W,3] with the expected size.
func (in Inputs) Validate(height, width int) error {
	for _, m := range types.Modalities {
		h, w, c, err := in.ByModality(m).Spatial()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidInputs, m, err)
		}
		if h != height || w != width || c != 3 {
			return fmt.Errorf("%w: %s is %dx%dx%d, expected %dx%dx3", ErrInvalidInputs, m, h, w, c, height, width)
		}
	}
	return nil
}

type Network interface {
	// Classes lists the labels in output order.
	Classes() []string

	// InputSize is the (height, width) every branch is resized to.
	InputSize() (int, int)

	Predict(in Inputs) ([]float32, error)

	// Layers lists the layer names whose activations and gradients can be
	// requested.
	Layers() []string

	// Gradients returns the activations of layer, the gradients of the class
	// score with respect to them, and the forward probabilities of the same
	// pass.
	Gradients(in Inputs, layer string, class int) (activations, gradients types.Tensor, probabilities []float32, err error)

	Close()
}

// NetworkType names an artifact format.
type NetworkType string

const (
	OnnxNetworkType NetworkType = "onnx"
)

type NetworkLoader func(artifactDir string) (Network, error)

func NewNetworkLoaders() map[NetworkType]NetworkLoader {
	return map[NetworkType]NetworkLoader{
		OnnxNetworkType: func(artifactDir string) (Network, error) {
			return LoadOnnxNetwork(artifactDir)
		},
	}
}

// Load opens the artifact in dir with the loader registered for its manifest
// format.
func Load(dir string, loaders map[NetworkType]NetworkLoader) (Network, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	loader, ok := loaders[manifest.Format]
	if !ok {
		return nil, fmt.Errorf("no loader for network format %q", manifest.Format)
	}
	return loader(dir)
}
