// Package imaging wraps the OpenCV operations shared by preprocessing and
// explanation rendering. Color images inside this repo are 8-bit RGB Mats.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"
)

var ErrInvalidImage = errors.New("invalid image")

// Header describes an encoded image without decoding its pixels.
type Header struct {
	Format string
	Width  int
	Height int
}

// Sniff reads the image header so callers can reject non-images and oversized
// inputs before paying for a full decode.
func Sniff(data []byte) (Header, error) {
	if len(data) == 0 {
		return Header{}, fmt.Errorf("%w: empty buffer", ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Header{}, fmt.Errorf("%w: empty image %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	return Header{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Decode turns encoded bytes into a 3 channel RGB Mat. Grayscale and alpha
// inputs are expanded or flattened by the decoder.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty buffer", ErrInvalidImage)
	}

	bgr, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer bgr.Close()

	if bgr.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: could not decode %d bytes", ErrInvalidImage, len(data))
	}
	if bgr.Channels() != 3 {
		return gocv.NewMat(), fmt.Errorf("%w: unsupported channel count %d", ErrInvalidImage, bgr.Channels())
	}

	rgb := gocv.NewMat()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)
	return rgb, nil
}

// EncodePNG encodes an RGB Mat as PNG.
func EncodePNG(rgb gocv.Mat) ([]byte, error) {
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, bgr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}
