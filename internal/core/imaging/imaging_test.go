package imaging_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

func encodeTestPNG(t *testing.T, w, h int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInterpolationFor(t *testing.T) {
	assert.Equal(t, gocv.InterpolationArea, imaging.InterpolationFor(400, 300, 256, 256))
	assert.Equal(t, gocv.InterpolationArea, imaging.InterpolationFor(100, 300, 256, 256))
	assert.Equal(t, gocv.InterpolationCubic, imaging.InterpolationFor(100, 100, 256, 256))
	assert.Equal(t, gocv.InterpolationCubic, imaging.InterpolationFor(256, 256, 256, 256))
}

func TestNormalizePixels(t *testing.T) {
	tensor, err := imaging.NormalizePixels([]uint8{0, 255, 127, 128, 64, 191}, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2, 3}, tensor.Shape)
	assert.InDelta(t, -1.0, tensor.Data[0], 1e-6)
	assert.InDelta(t, 1.0, tensor.Data[1], 1e-6)
	for _, v := range tensor.Data {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}

	_, err = imaging.NormalizePixels([]uint8{1, 2}, 1, 1, 3)
	assert.Error(t, err)
}

func TestHeatPixels(t *testing.T) {
	assert.Equal(t, []uint8{0, 0, 127, 255, 255}, imaging.HeatPixels([]float32{-1, 0, 0.5, 1, 3}))
}

func TestSniff(t *testing.T) {
	header, err := imaging.Sniff(encodeTestPNG(t, 7, 5, color.RGBA{R: 10, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, imaging.Header{Format: "png", Width: 7, Height: 5}, header)

	_, err = imaging.Sniff([]byte("definitely not an image"))
	assert.ErrorIs(t, err, imaging.ErrInvalidImage)

	_, err = imaging.Sniff(nil)
	assert.ErrorIs(t, err, imaging.ErrInvalidImage)
}

func TestDecodeKeepsRGBOrder(t *testing.T) {
	rgb, err := imaging.Decode(encodeTestPNG(t, 4, 3, color.RGBA{R: 200, G: 100, B: 10, A: 255}))
	require.NoError(t, err)
	defer rgb.Close()

	assert.Equal(t, 3, rgb.Rows())
	assert.Equal(t, 4, rgb.Cols())
	assert.Equal(t, gocv.MatTypeCV8UC3, rgb.Type())

	pix, err := rgb.DataPtrUint8()
	require.NoError(t, err)
	assert.Equal(t, []uint8{200, 100, 10}, pix[:3])
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := imaging.Decode([]byte{0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, imaging.ErrInvalidImage)

	_, err = imaging.Decode(nil)
	assert.ErrorIs(t, err, imaging.ErrInvalidImage)
}

func TestResizeToAndNormalize(t *testing.T) {
	rgb, err := imaging.Decode(encodeTestPNG(t, 40, 30, color.RGBA{R: 255, G: 0, B: 0, A: 255}))
	require.NoError(t, err)
	defer rgb.Close()

	for _, size := range [][2]int{{16, 16}, {64, 48}} {
		resized := imaging.ResizeTo(rgb, size[0], size[1])
		assert.Equal(t, size[0], resized.Rows())
		assert.Equal(t, size[1], resized.Cols())

		tensor, err := imaging.Normalize(resized)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, int64(size[0]), int64(size[1]), 3}, tensor.Shape)
		assert.InDelta(t, 1.0, tensor.Data[0], 1e-6)
		assert.InDelta(t, -1.0, tensor.Data[1], 1e-6)
		resized.Close()
	}
}

func TestOverlayMatchesOriginalSize(t *testing.T) {
	rgb, err := imaging.Decode(encodeTestPNG(t, 50, 30, color.RGBA{R: 20, G: 120, B: 40, A: 255}))
	require.NoError(t, err)
	defer rgb.Close()

	m := types.SaliencyMap{Width: 4, Height: 4, Values: make([]float32, 16)}
	m.Values[5] = 1

	out, err := imaging.Overlay(rgb, m)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, 30, out.Rows())
	assert.Equal(t, 50, out.Cols())
	assert.Equal(t, gocv.MatTypeCV8UC3, out.Type())

	encoded, err := imaging.EncodePNG(out)
	require.NoError(t, err)
	header, err := imaging.Sniff(encoded)
	require.NoError(t, err)
	assert.Equal(t, 50, header.Width)

	_, err = imaging.Overlay(rgb, types.SaliencyMap{Width: 2, Height: 2, Values: []float32{1}})
	assert.Error(t, err)
}

func TestGrayRoundTrip(t *testing.T) {
	m, err := imaging.GrayMat(3, 2, []uint8{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	defer m.Close()

	p, err := imaging.GrayPlane(m)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, p.Pix)
	assert.Equal(t, 3, p.W)
}
