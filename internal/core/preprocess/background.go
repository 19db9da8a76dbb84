// Package preprocess turns an uploaded photo into the three aligned input
// modalities: the background free RGB image, a vein map and a texture map.
package preprocess

import (
	"fmt"
	"log/slog"

	"leaf-backend/internal/core/imaging"

	"gocv.io/x/gocv"
)

var ErrInvalidImage = imaging.ErrInvalidImage

// Segmenter predicts the foreground of an RGB image as an 8-bit alpha mask of
// the same size.
type Segmenter interface {
	Segment(rgb gocv.Mat) (gocv.Mat, error)
}

type BackgroundRemover struct {
	segmenter Segmenter
}

// NewBackgroundRemover wraps a segmenter. A nil segmenter keeps the image
// unchanged; binaries only allow that with SEGMENTER=none.
func NewBackgroundRemover(segmenter Segmenter) *BackgroundRemover {
	return &BackgroundRemover{segmenter: segmenter}
}

// Remove decodes data and composites the segmented leaf over black.
func (b *BackgroundRemover) Remove(data []byte) (gocv.Mat, error) {
	rgb, err := imaging.Decode(data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer rgb.Close()
	return b.RemoveMat(rgb)
}

// RemoveMat composites the foreground of rgb over an opaque black canvas.
// Segmentation failures and empty masks are not errors: the result is an all
// black image of the same size.
func (b *BackgroundRemover) RemoveMat(rgb gocv.Mat) (gocv.Mat, error) {
	if rgb.Empty() || rgb.Type() != gocv.MatTypeCV8UC3 {
		return gocv.NewMat(), fmt.Errorf("%w: expected non-empty 8-bit RGB image", ErrInvalidImage)
	}
	if b.segmenter == nil {
		return rgb.Clone(), nil
	}

	w, h := rgb.Cols(), rgb.Rows()

	mask, err := b.segmenter.Segment(rgb)
	if err != nil {
		slog.Warn("segmentation failed, using black image", "error", err)
		return imaging.Black(w, h), nil
	}
	defer mask.Close()

	if mask.Rows() != h || mask.Cols() != w || mask.Type() != gocv.MatTypeCV8UC1 {
		slog.Warn("segmenter returned malformed mask, using black image", "rows", mask.Rows(), "cols", mask.Cols(), "type", mask.Type())
		return imaging.Black(w, h), nil
	}

	pix, err := rgb.DataPtrUint8()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error reading image data: %w", err)
	}
	alpha, err := mask.DataPtrUint8()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error reading mask data: %w", err)
	}

	out, foreground := CompositeOverBlack(pix, alpha)
	if !foreground {
		slog.Warn("segmenter found no foreground, using black image", "width", w, "height", h)
		return imaging.Black(w, h), nil
	}
	return imaging.ColorMat(w, h, out)
}

// CompositeOverBlack cuts the leaf out with the mask and then composites the
// cutout over black, so every channel is scaled by alpha twice:
// out = c*(a/255)^2, with rounding after each step. It reports whether any
// alpha was non-zero.
func CompositeOverBlack(rgb, alpha []uint8) ([]uint8, bool) {
	out := make([]uint8, len(rgb))
	foreground := false
	for i, a := range alpha {
		if a == 0 {
			continue
		}
		foreground = true
		for c := 0; c < 3; c++ {
			cutout := scaleByAlpha(rgb[3*i+c], a)
			out[3*i+c] = scaleByAlpha(cutout, a)
		}
	}
	return out, foreground
}

func scaleByAlpha(v, a uint8) uint8 {
	return uint8((uint32(v)*uint32(a) + 127) / 255)
}
