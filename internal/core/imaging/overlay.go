package imaging

import (
	"fmt"
	"image"
	"math"

	"leaf-backend/internal/core/types"

	"gocv.io/x/gocv"
)

const (
	overlayImageWeight = 0.6
	overlayHeatWeight  = 0.4
)

// HeatPixels converts saliency values to 8-bit intensities, clamping to [0,1]
// and truncating 255*v.
func HeatPixels(values []float32) []uint8 {
	out := make([]uint8, len(values))
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || f <= 0 {
			continue
		}
		if f >= 1 {
			out[i] = 255
			continue
		}
		out[i] = uint8(255 * f)
	}
	return out
}

// Overlay renders a saliency map over the original RGB image: the map is
// resized bicubically to the image size, colored with the JET colormap and
// blended 0.6 image, 0.4 heat.
func Overlay(original gocv.Mat, m types.SaliencyMap) (gocv.Mat, error) {
	if original.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty original image", ErrInvalidImage)
	}
	if m.Width <= 0 || m.Height <= 0 || len(m.Values) != m.Width*m.Height {
		return gocv.NewMat(), fmt.Errorf("malformed saliency map %dx%d with %d values", m.Width, m.Height, len(m.Values))
	}

	small := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV32F)
	defer small.Close()
	dst, err := small.DataPtrFloat32()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error writing saliency mat: %w", err)
	}
	copy(dst, m.Values)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(small, &resized, image.Pt(original.Cols(), original.Rows()), 0, 0, gocv.InterpolationCubic)

	values, err := resized.DataPtrFloat32()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error reading resized saliency: %w", err)
	}
	gray, err := GrayMat(original.Cols(), original.Rows(), HeatPixels(values))
	if err != nil {
		return gocv.NewMat(), err
	}
	defer gray.Close()

	heatBGR := gocv.NewMat()
	defer heatBGR.Close()
	gocv.ApplyColorMap(gray, &heatBGR, gocv.ColormapJet)

	heat := gocv.NewMat()
	defer heat.Close()
	gocv.CvtColor(heatBGR, &heat, gocv.ColorBGRToRGB)

	out := gocv.NewMat()
	gocv.AddWeighted(original, overlayImageWeight, heat, overlayHeatWeight, 0, &out)
	return out, nil
}
