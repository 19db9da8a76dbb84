// Package features holds the numeric kernels behind the vein and texture
// modalities. Everything here works on float64 planes so it can be tested
// without OpenCV; the gocv side lives in the imaging and preprocess packages.
package features

import (
	"fmt"
	"math"
)

// Plane is a single channel image stored row-major.
type Plane struct {
	W, H int
	Pix  []float64
}

func NewPlane(w, h int) Plane {
	return Plane{W: w, H: h, Pix: make([]float64, w*h)}
}

func PlaneFromUint8(w, h int, pix []uint8) (Plane, error) {
	if len(pix) != w*h {
		return Plane{}, fmt.Errorf("plane %dx%d expects %d pixels, found %d", w, h, w*h, len(pix))
	}
	p := NewPlane(w, h)
	for i, v := range pix {
		p.Pix[i] = float64(v)
	}
	return p, nil
}

func (p Plane) At(x, y int) float64 {
	return p.Pix[y*p.W+x]
}

func (p Plane) Set(x, y int, v float64) {
	p.Pix[y*p.W+x] = v
}

func (p Plane) Clone() Plane {
	c := NewPlane(p.W, p.H)
	copy(c.Pix, p.Pix)
	return c
}

// TruncUint8 casts each value to uint8 the way numpy's astype does for values
// already inside [0,255]; values outside are clamped.
func (p Plane) TruncUint8() []uint8 {
	out := make([]uint8, len(p.Pix))
	for i, v := range p.Pix {
		out[i] = clampUint8(math.Trunc(v))
	}
	return out
}

// RoundUint8 maps values in [0,1] to [0,255] with rounding.
func (p Plane) RoundUint8() []uint8 {
	out := make([]uint8, len(p.Pix))
	for i, v := range p.Pix {
		out[i] = clampUint8(math.Round(v * 255))
	}
	return out
}

func clampUint8(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
