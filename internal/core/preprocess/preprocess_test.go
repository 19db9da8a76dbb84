package preprocess_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/core/preprocess"
	"leaf-backend/plugin/shared"

	"github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// leafPNG draws a green ellipse with a dark midrib and side veins on a white
// background.
func leafPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	cx, cy := float64(w)/2, float64(h)/2
	rx, ry := float64(w)*0.4, float64(h)*0.3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := (float64(x)-cx)/rx, (float64(y)-cy)/ry
			if dx*dx+dy*dy > 1 {
				continue
			}
			c := color.RGBA{R: 40, G: 150, B: 50, A: 255}
			if y == int(cy) || (x-int(cx))%9 == 0 {
				c = color.RGBA{R: 20, G: 70, B: 25, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixedSegmenter struct {
	value uint8
	err   error
}

func (s fixedSegmenter) Segment(rgb gocv.Mat) (gocv.Mat, error) {
	if s.err != nil {
		return gocv.NewMat(), s.err
	}
	pix := make([]uint8, rgb.Rows()*rgb.Cols())
	for i := range pix {
		pix[i] = s.value
	}
	return imaging.GrayMat(rgb.Cols(), rgb.Rows(), pix)
}

func matBytes(t *testing.T, m gocv.Mat) []byte {
	t.Helper()
	return m.ToBytes()
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestCompositeOverBlack(t *testing.T) {
	out, fg := preprocess.CompositeOverBlack([]uint8{200, 100, 50, 10, 20, 30, 255, 255, 0}, []uint8{255, 128, 64})
	assert.True(t, fg)
	// soft edges are darkened by alpha squared: 255*(64/255)^2 ~= 16
	assert.Equal(t, []uint8{200, 100, 50, 3, 5, 8, 16, 16, 0}, out)

	out, fg = preprocess.CompositeOverBlack([]uint8{200, 100, 50}, []uint8{0})
	assert.False(t, fg)
	assert.Equal(t, []uint8{0, 0, 0}, out)
}

func TestMaskFromPrediction(t *testing.T) {
	assert.Equal(t, []uint8{0, 127, 255}, preprocess.MaskFromPrediction([]float32{1, 2, 3}))
	assert.Equal(t, []uint8{0, 0}, preprocess.MaskFromPrediction([]float32{0.5, 0.5}))
}

func TestSegmenterInputLayout(t *testing.T) {
	// One 1x1 white pixel: scaled to 1 then standardized per channel.
	in := preprocess.SegmenterInput([]uint8{255, 255, 255}, 1)
	require.Len(t, in, 3)
	assert.InDelta(t, (1-0.485)/0.229, in[0], 1e-5)
	assert.InDelta(t, (1-0.406)/0.225, in[2], 1e-5)

	dark := preprocess.SegmenterInput([]uint8{0, 0, 0, 0, 0, 0}, 1)
	assert.InDelta(t, -0.485/0.229, dark[0], 1e-5)
}

func TestParseTextureOrder(t *testing.T) {
	order, err := preprocess.ParseTextureOrder("")
	require.NoError(t, err)
	assert.Equal(t, preprocess.DefaultTextureOrder, order)

	order, err = preprocess.ParseTextureOrder("lbp, gabor, UNSHARP")
	require.NoError(t, err)
	assert.Equal(t, []preprocess.TextureChannel{preprocess.ChannelLBP, preprocess.ChannelGabor, preprocess.ChannelUnsharp}, order)

	for _, bad := range []string{"lbp,gabor", "lbp,lbp,gabor", "lbp,gabor,sobel"} {
		_, err := preprocess.ParseTextureOrder(bad)
		assert.Error(t, err, bad)
	}
}

func TestBackgroundRemover(t *testing.T) {
	data := leafPNG(t, 40, 30)

	t.Run("segmentation error gives black image", func(t *testing.T) {
		out, err := preprocess.NewBackgroundRemover(fixedSegmenter{err: errors.New("boom")}).Remove(data)
		require.NoError(t, err)
		defer out.Close()
		assert.Equal(t, 30, out.Rows())
		assert.Equal(t, 40, out.Cols())
		assert.True(t, allZero(matBytes(t, out)))
	})

	t.Run("empty mask gives black image", func(t *testing.T) {
		out, err := preprocess.NewBackgroundRemover(fixedSegmenter{value: 0}).Remove(data)
		require.NoError(t, err)
		defer out.Close()
		assert.True(t, allZero(matBytes(t, out)))
	})

	t.Run("opaque mask keeps pixels", func(t *testing.T) {
		out, err := preprocess.NewBackgroundRemover(fixedSegmenter{value: 255}).Remove(data)
		require.NoError(t, err)
		defer out.Close()

		orig, err := imaging.Decode(data)
		require.NoError(t, err)
		defer orig.Close()
		assert.Equal(t, matBytes(t, orig), matBytes(t, out))
	})

	t.Run("invalid bytes are an input error", func(t *testing.T) {
		_, err := preprocess.NewBackgroundRemover(nil).Remove([]byte("nope"))
		assert.ErrorIs(t, err, preprocess.ErrInvalidImage)
	})
}

func TestVeinMapShapeAndDeterminism(t *testing.T) {
	rgb, err := imaging.Decode(leafPNG(t, 48, 36))
	require.NoError(t, err)
	defer rgb.Close()

	a, err := preprocess.VeinMap(rgb, preprocess.DefaultVeinParams())
	require.NoError(t, err)
	defer a.Close()
	b, err := preprocess.VeinMap(rgb, preprocess.DefaultVeinParams())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, gocv.MatTypeCV8UC3, a.Type())
	assert.Equal(t, 36, a.Rows())
	assert.Equal(t, 48, a.Cols())
	assert.Equal(t, matBytes(t, a), matBytes(t, b))

	pix := matBytes(t, a)
	for i := 0; i < len(pix); i += 3 {
		require.Equal(t, pix[i], pix[i+1])
		require.Equal(t, pix[i], pix[i+2])
	}
}

func TestVeinMapBlackImageIsZero(t *testing.T) {
	black := imaging.Black(20, 20)
	defer black.Close()

	out, err := preprocess.VeinMap(black, preprocess.DefaultVeinParams())
	require.NoError(t, err)
	defer out.Close()
	assert.True(t, allZero(matBytes(t, out)))
}

func TestTextureMapChannelOrder(t *testing.T) {
	rgb, err := imaging.Decode(leafPNG(t, 32, 24))
	require.NoError(t, err)
	defer rgb.Close()

	params := preprocess.DefaultTextureParams()
	def, err := preprocess.TextureMap(rgb, params)
	require.NoError(t, err)
	defer def.Close()
	assert.Equal(t, gocv.MatTypeCV8UC3, def.Type())

	params.Order = []preprocess.TextureChannel{preprocess.ChannelLBP, preprocess.ChannelGabor, preprocess.ChannelUnsharp}
	swapped, err := preprocess.TextureMap(rgb, params)
	require.NoError(t, err)
	defer swapped.Close()

	a, b := matBytes(t, def), matBytes(t, swapped)
	for i := 0; i < len(a); i += 3 {
		require.Equal(t, a[i], b[i+2])
		require.Equal(t, a[i+1], b[i+1])
		require.Equal(t, a[i+2], b[i])
	}
}

func TestPipelineRun(t *testing.T) {
	p := preprocess.NewPipeline(fixedSegmenter{value: 255}, preprocess.DefaultConfig(24, 24))

	m, err := p.Run(leafPNG(t, 50, 40))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 40, m.Clean.Rows())
	assert.Equal(t, 50, m.Clean.Cols())
	for _, mat := range []gocv.Mat{m.RGB, m.Vein, m.Texture} {
		assert.Equal(t, 24, mat.Rows())
		assert.Equal(t, 24, mat.Cols())
		assert.Equal(t, gocv.MatTypeCV8UC3, mat.Type())
	}

	_, err = p.Run(nil)
	assert.ErrorIs(t, err, preprocess.ErrInvalidImage)
}

func TestPluginSegmenterRoundTrip(t *testing.T) {
	client, _ := plugin.TestPluginRPCConn(t, map[string]plugin.Plugin{
		shared.PluginName: &shared.SegmenterPlugin{Impl: preprocess.FrameSegmenter{Segmenter: fixedSegmenter{value: 255}}},
	}, nil)
	defer client.Close()

	raw, err := client.Dispense(shared.PluginName)
	require.NoError(t, err)
	seg := preprocess.NewRemoteSegmenter(raw.(shared.Segmenter))

	rgb, err := imaging.Decode(leafPNG(t, 10, 8))
	require.NoError(t, err)
	defer rgb.Close()

	mask, err := seg.Segment(rgb)
	require.NoError(t, err)
	defer mask.Close()
	assert.Equal(t, 8, mask.Rows())
	assert.Equal(t, 10, mask.Cols())
	assert.Equal(t, gocv.MatTypeCV8UC1, mask.Type())

	seg.Close()
	_, err = seg.Segment(rgb)
	assert.Error(t, err)
}
