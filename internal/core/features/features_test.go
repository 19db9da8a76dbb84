package features_test

import (
	"math"
	"testing"

	"leaf-backend/internal/core/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantPlane(w, h int, v float64) features.Plane {
	p := features.NewPlane(w, h)
	for i := range p.Pix {
		p.Pix[i] = v
	}
	return p
}

func TestPercentileLinearInterpolation(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}

	assert.InDelta(t, 1.0, features.Percentile(values, 0), 1e-12)
	assert.InDelta(t, 5.0, features.Percentile(values, 100), 1e-12)
	assert.InDelta(t, 3.0, features.Percentile(values, 50), 1e-12)
	assert.InDelta(t, 1.08, features.Percentile(values, 2), 1e-12)
	assert.InDelta(t, 4.92, features.Percentile(values, 98), 1e-12)
	assert.Equal(t, 0.0, features.Percentile(nil, 50))
}

func TestGaussianPreservesConstant(t *testing.T) {
	for _, border := range []features.Border{features.BorderReflect, features.BorderNearest} {
		p := constantPlane(9, 7, 42)
		out := features.Gaussian(p, 2, border)
		for _, v := range out.Pix {
			assert.InDelta(t, 42, v, 1e-9)
		}
	}
}

func TestGaussianConservesMassInInterior(t *testing.T) {
	p := features.NewPlane(41, 41)
	p.Set(20, 20, 1)
	out := features.Gaussian(p, 1.5, features.BorderReflect)

	sum := 0.0
	for _, v := range out.Pix {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, out.At(20, 20), out.At(21, 20))
	assert.InDelta(t, out.At(21, 20), out.At(20, 21), 1e-12)
}

func TestFrangiFlatImageIsZero(t *testing.T) {
	out := features.Frangi(constantPlane(16, 16, 100), features.DefaultFrangiParams())
	for _, v := range out.Pix {
		assert.InDelta(t, 0, v, 1e-12)
	}
}

func TestFrangiHighlightsDarkRidge(t *testing.T) {
	p := constantPlane(32, 32, 200)
	for y := 0; y < 32; y++ {
		p.Set(15, y, 20)
		p.Set(16, y, 20)
	}

	out := features.Frangi(p, features.DefaultFrangiParams())
	onRidge := out.At(15, 16)
	offRidge := out.At(4, 16)

	assert.Greater(t, onRidge, 0.1)
	assert.Greater(t, onRidge, offRidge)
	for _, v := range out.Pix {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestFrangiTinyImage(t *testing.T) {
	out := features.Frangi(constantPlane(1, 5, 3), features.DefaultFrangiParams())
	assert.Len(t, out.Pix, 5)
}

func TestScaleRange(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3}, features.ScaleRange(1, 4, 1))
	assert.Empty(t, features.ScaleRange(1, 4, 0))
}

func TestUniformLBPZeroPlane(t *testing.T) {
	out := features.UniformLBP(features.NewPlane(12, 12), 16, 2)
	for _, v := range out.Pix {
		assert.Equal(t, 16.0, v)
	}
}

func TestUniformLBPValueRange(t *testing.T) {
	p := features.NewPlane(10, 10)
	for i := range p.Pix {
		p.Pix[i] = float64((i * 37) % 251)
	}
	out := features.UniformLBP(p, 16, 2)
	for _, v := range out.Pix {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 17.0)
		assert.Equal(t, math.Trunc(v), v)
	}
}

func TestUniformLBPBrightSpot(t *testing.T) {
	p := features.NewPlane(11, 11)
	p.Set(5, 5, 255)
	out := features.UniformLBP(p, 16, 2)

	// No neighbour reaches the center value, every bit is zero.
	assert.Equal(t, 0.0, out.At(5, 5))
}

func TestGaborKernelShapeAndSymmetry(t *testing.T) {
	re, im := features.GaborKernel(features.GaborParams{Frequency: 0.2, Theta: 0, Bandwidth: 1, NStds: 3})
	require.Equal(t, re.W, re.H)
	require.Equal(t, 1, re.W%2)
	require.Len(t, im.Data, len(re.Data))

	n := len(re.Data)
	for i := range re.Data {
		assert.InDelta(t, re.Data[i], re.Data[n-1-i], 1e-12)
		assert.InDelta(t, -im.Data[i], im.Data[n-1-i], 1e-12)
	}

	flipped := im.Flipped()
	assert.InDelta(t, im.Data[0], flipped.Data[n-1], 1e-12)
}

func TestGaborBank(t *testing.T) {
	bank := features.GaborBank([]float64{0.2, 0.3}, []float64{0, math.Pi / 4, math.Pi / 2, 3 * math.Pi / 4}, 1, 3)
	assert.Len(t, bank, 8)
	assert.Equal(t, 0.3, bank[7].Frequency)
}

func TestCorrelateIdentity(t *testing.T) {
	p := features.NewPlane(5, 4)
	for i := range p.Pix {
		p.Pix[i] = float64(i)
	}
	k := features.Kernel{W: 3, H: 3, Data: []float64{0, 0, 0, 0, 1, 0, 0, 0, 0}}
	out := features.Correlate(p, k, features.BorderReflect)
	assert.Equal(t, p.Pix, out.Pix)
}

func TestStretchAndMinMax(t *testing.T) {
	p := features.Plane{W: 4, H: 1, Pix: []float64{0, 5, 10, 20}}

	s := features.Stretch(p, 5, 10)
	assert.Equal(t, []float64{0, 0, 255, 255}, s.Pix)

	empty := features.Stretch(p, 3, 3)
	assert.Equal(t, []float64{0, 0, 0, 0}, empty.Pix)

	m := features.MinMaxScale(p, 0, 255)
	assert.InDelta(t, 63.75, m.Pix[1], 1e-9)
	assert.InDelta(t, 255, m.Pix[3], 1e-9)

	flat := features.MinMaxScale(constantPlane(2, 2, 7), 0, 255)
	assert.Equal(t, []float64{0, 0, 0, 0}, flat.Pix)
}

func TestNormalizeByMax(t *testing.T) {
	p := features.Plane{W: 3, H: 1, Pix: []float64{1, 2, 4}}
	assert.Equal(t, []float64{0.25, 0.5, 1}, features.NormalizeByMax(p).Pix)

	zero := features.NormalizeByMax(features.NewPlane(3, 1))
	assert.Equal(t, []float64{0, 0, 0}, zero.Pix)
}

func TestUnsharpMaskClips(t *testing.T) {
	p := features.NewPlane(7, 7)
	p.Set(3, 3, 1)
	out := features.UnsharpMask(p, 1, 1)
	for _, v := range out.Pix {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, 1.0, out.At(3, 3))
}

func TestUint8Conversions(t *testing.T) {
	p := features.Plane{W: 4, H: 1, Pix: []float64{-3, 12.9, 254.99, 400}}
	assert.Equal(t, []uint8{0, 12, 254, 255}, p.TruncUint8())

	q := features.Plane{W: 2, H: 1, Pix: []float64{0.5, 1}}
	assert.Equal(t, []uint8{128, 255}, q.RoundUint8())

	_, err := features.PlaneFromUint8(2, 2, []uint8{1, 2, 3})
	assert.Error(t, err)
}
