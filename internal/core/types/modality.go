package types

import "fmt"

type Modality string

const (
	RGB     Modality = "rgb"
	Vein    Modality = "vein"
	Texture Modality = "texture"
)

// Modalities is the order the network consumes its input branches in.
var Modalities = []Modality{RGB, Vein, Texture}

// Tensor is a dense float32 tensor in row-major order. Image tensors use NHWC.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(shape ...int64) Tensor {
	return Tensor{Shape: shape, Data: make([]float32, numel(shape))}
}

func numel(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t Tensor) Len() int {
	return int(numel(t.Shape))
}

func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("tensor has no shape")
	}
	if int64(len(t.Data)) != numel(t.Shape) {
		return fmt.Errorf("tensor shape %v expects %d values, found %d", t.Shape, numel(t.Shape), len(t.Data))
	}
	return nil
}

// Spatial returns height, width and channels of a [1,H,W,C] feature tensor.
func (t Tensor) Spatial() (h, w, c int, err error) {
	if len(t.Shape) != 4 || t.Shape[0] != 1 {
		return 0, 0, 0, fmt.Errorf("expected a [1,H,W,C] tensor, got shape %v", t.Shape)
	}
	if err := t.Validate(); err != nil {
		return 0, 0, 0, err
	}
	return int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3]), nil
}

func (t Tensor) Clone() Tensor {
	shape := make([]int64, len(t.Shape))
	copy(shape, t.Shape)
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return Tensor{Shape: shape, Data: data}
}
