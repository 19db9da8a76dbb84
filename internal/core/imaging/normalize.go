package imaging

import (
	"fmt"

	"leaf-backend/internal/core/types"

	"gocv.io/x/gocv"
)

// NormalizePixels maps 8-bit HWC pixels to [-1, 1] as x/127.5 - 1 and wraps
// them in a batch of one.
func NormalizePixels(pix []uint8, h, w, c int) (types.Tensor, error) {
	if len(pix) != h*w*c {
		return types.Tensor{}, fmt.Errorf("expected %d values for %dx%dx%d, found %d", h*w*c, h, w, c, len(pix))
	}
	t := types.NewTensor(1, int64(h), int64(w), int64(c))
	for i, v := range pix {
		t.Data[i] = float32(v)/127.5 - 1
	}
	return t, nil
}

// Normalize converts an 8-bit 3 channel Mat into an NHWC float tensor.
func Normalize(m gocv.Mat) (types.Tensor, error) {
	if m.Type() != gocv.MatTypeCV8UC3 {
		return types.Tensor{}, fmt.Errorf("expected 8-bit 3 channel mat, found type %v", m.Type())
	}
	pix, err := m.DataPtrUint8()
	if err != nil {
		return types.Tensor{}, fmt.Errorf("error reading mat data: %w", err)
	}
	return NormalizePixels(pix, m.Rows(), m.Cols(), m.Channels())
}
