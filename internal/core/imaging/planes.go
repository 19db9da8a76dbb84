package imaging

import (
	"fmt"

	"leaf-backend/internal/core/features"

	"gocv.io/x/gocv"
)

// GrayPlane copies a single channel 8-bit Mat into a float plane.
func GrayPlane(m gocv.Mat) (features.Plane, error) {
	if m.Type() != gocv.MatTypeCV8UC1 {
		return features.Plane{}, fmt.Errorf("expected 8-bit single channel mat, found type %v", m.Type())
	}
	pix, err := m.DataPtrUint8()
	if err != nil {
		return features.Plane{}, fmt.Errorf("error reading mat data: %w", err)
	}
	return features.PlaneFromUint8(m.Cols(), m.Rows(), pix)
}

// GrayMat builds a single channel 8-bit Mat from raw pixels.
func GrayMat(w, h int, pix []uint8) (gocv.Mat, error) {
	if len(pix) != w*h {
		return gocv.NewMat(), fmt.Errorf("gray mat %dx%d expects %d pixels, found %d", w, h, w*h, len(pix))
	}
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	dst, err := m.DataPtrUint8()
	if err != nil {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("error writing mat data: %w", err)
	}
	copy(dst, pix)
	return m, nil
}

// FloatMat copies a plane into a 64-bit float Mat.
func FloatMat(p features.Plane) (gocv.Mat, error) {
	m := gocv.NewMatWithSize(p.H, p.W, gocv.MatTypeCV64F)
	dst, err := m.DataPtrFloat64()
	if err != nil {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("error writing mat data: %w", err)
	}
	copy(dst, p.Pix)
	return m, nil
}

// FloatPlane copies a single channel 64-bit float Mat into a plane.
func FloatPlane(m gocv.Mat) (features.Plane, error) {
	if m.Type() != gocv.MatTypeCV64F {
		return features.Plane{}, fmt.Errorf("expected 64-bit float mat, found type %v", m.Type())
	}
	src, err := m.DataPtrFloat64()
	if err != nil {
		return features.Plane{}, fmt.Errorf("error reading mat data: %w", err)
	}
	p := features.NewPlane(m.Cols(), m.Rows())
	copy(p.Pix, src)
	return p, nil
}

// KernelMat copies a filter kernel into a 64-bit float Mat.
func KernelMat(k features.Kernel) (gocv.Mat, error) {
	return FloatMat(features.Plane{W: k.W, H: k.H, Pix: k.Data})
}

// Channel extracts one channel of a multi channel Mat.
func Channel(m gocv.Mat, idx int) (gocv.Mat, error) {
	channels := gocv.Split(m)
	if idx < 0 || idx >= len(channels) {
		for _, c := range channels {
			c.Close()
		}
		return gocv.NewMat(), fmt.Errorf("channel %d out of range for %d channel mat", idx, len(channels))
	}
	for i, c := range channels {
		if i != idx {
			c.Close()
		}
	}
	return channels[idx], nil
}

// Stack merges single channel Mats into one multi channel Mat in order.
func Stack(channels ...gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.Merge(channels, &out)
	return out
}

// Gray3 replicates a single channel Mat into three identical channels.
func Gray3(gray gocv.Mat) gocv.Mat {
	return Stack(gray, gray, gray)
}

// ColorMat builds a 3 channel 8-bit Mat from interleaved pixels.
func ColorMat(w, h int, pix []uint8) (gocv.Mat, error) {
	if len(pix) != w*h*3 {
		return gocv.NewMat(), fmt.Errorf("color mat %dx%d expects %d values, found %d", w, h, w*h*3, len(pix))
	}
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	dst, err := m.DataPtrUint8()
	if err != nil {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("error writing mat data: %w", err)
	}
	copy(dst, pix)
	return m, nil
}

// Black returns an all zero 3 channel 8-bit Mat.
func Black(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
}
