package preprocess

import (
	"fmt"
	"image"
	"math"
	"strings"

	"leaf-backend/internal/core/features"
	"leaf-backend/internal/core/imaging"

	"gocv.io/x/gocv"
)

type TextureChannel string

const (
	ChannelUnsharp TextureChannel = "unsharp"
	ChannelGabor   TextureChannel = "gabor"
	ChannelLBP     TextureChannel = "lbp"
)

// DefaultTextureOrder is the (R, G, B) layout the trained network expects.
var DefaultTextureOrder = []TextureChannel{ChannelUnsharp, ChannelGabor, ChannelLBP}

// ParseTextureOrder reads a comma separated permutation of unsharp, gabor and
// lbp. An empty string selects the default order.
func ParseTextureOrder(s string) ([]TextureChannel, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultTextureOrder, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("texture channel order needs 3 entries, found %d in %q", len(parts), s)
	}
	seen := map[TextureChannel]bool{}
	order := make([]TextureChannel, 0, 3)
	for _, part := range parts {
		ch := TextureChannel(strings.ToLower(strings.TrimSpace(part)))
		switch ch {
		case ChannelUnsharp, ChannelGabor, ChannelLBP:
		default:
			return nil, fmt.Errorf("unknown texture channel %q", part)
		}
		if seen[ch] {
			return nil, fmt.Errorf("texture channel %q listed twice", ch)
		}
		seen[ch] = true
		order = append(order, ch)
	}
	return order, nil
}

type TextureParams struct {
	UnsharpRadius    float64
	UnsharpAmount    float64
	LBPPoints        int
	LBPRadius        float64
	GaborFrequencies []float64
	GaborThetas      []float64
	GaborBandwidth   float64
	GaborNStds       float64
	Order            []TextureChannel
}

func DefaultTextureParams() TextureParams {
	return TextureParams{
		UnsharpRadius:    1,
		UnsharpAmount:    1,
		LBPPoints:        16,
		LBPRadius:        2,
		GaborFrequencies: []float64{0.2, 0.3},
		GaborThetas:      []float64{0, math.Pi / 4, math.Pi / 2, 3 * math.Pi / 4},
		GaborBandwidth:   1,
		GaborNStds:       3,
		Order:            DefaultTextureOrder,
	}
}

// TextureMap packs a sharpened gray image, its gabor energy and its
// equalized uniform LBP codes into three channels.
func TextureMap(rgb gocv.Mat, params TextureParams) (gocv.Mat, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)

	grayPlane, err := imaging.GrayPlane(gray)
	if err != nil {
		return gocv.NewMat(), err
	}
	unit := grayPlane.Clone()
	for i := range unit.Pix {
		unit.Pix[i] /= 255
	}
	sharp := features.UnsharpMask(unit, params.UnsharpRadius, params.UnsharpAmount)
	sharpPix := sharp.RoundUint8()
	sharpened, err := features.PlaneFromUint8(sharp.W, sharp.H, sharpPix)
	if err != nil {
		return gocv.NewMat(), err
	}

	lbp := features.UniformLBP(sharpened, params.LBPPoints, params.LBPRadius)
	lbpMat, err := imaging.GrayMat(lbp.W, lbp.H, lbp.TruncUint8())
	if err != nil {
		return gocv.NewMat(), err
	}
	defer lbpMat.Close()
	lbpEq := gocv.NewMat()
	defer lbpEq.Close()
	gocv.EqualizeHist(lbpMat, &lbpEq)

	energy, err := gaborEnergy(sharpened, params)
	if err != nil {
		return gocv.NewMat(), err
	}
	gaborMat, err := imaging.GrayMat(energy.W, energy.H, energy.RoundUint8())
	if err != nil {
		return gocv.NewMat(), err
	}
	defer gaborMat.Close()

	sharpMat, err := imaging.GrayMat(sharp.W, sharp.H, sharpPix)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer sharpMat.Close()

	order := params.Order
	if len(order) == 0 {
		order = DefaultTextureOrder
	}
	byName := map[TextureChannel]gocv.Mat{
		ChannelUnsharp: sharpMat,
		ChannelGabor:   gaborMat,
		ChannelLBP:     lbpEq,
	}
	channels := make([]gocv.Mat, 0, len(order))
	for _, ch := range order {
		m, ok := byName[ch]
		if !ok {
			return gocv.NewMat(), fmt.Errorf("unknown texture channel %q", ch)
		}
		channels = append(channels, m)
	}
	return imaging.Stack(channels...), nil
}

// gaborEnergy returns the per pixel maximum gabor magnitude over the filter
// bank, scaled into [0, 1].
func gaborEnergy(p features.Plane, params TextureParams) (features.Plane, error) {
	src, err := imaging.FloatMat(p)
	if err != nil {
		return features.Plane{}, err
	}
	defer src.Close()

	var responses []features.Plane
	for _, g := range features.GaborBank(params.GaborFrequencies, params.GaborThetas, params.GaborBandwidth, params.GaborNStds) {
		re, im := features.GaborKernel(g)
		reResp, err := convolve(src, re)
		if err != nil {
			return features.Plane{}, err
		}
		imResp, err := convolve(src, im)
		if err != nil {
			return features.Plane{}, err
		}
		responses = append(responses, features.Magnitude(reResp, imResp))
	}
	if len(responses) == 0 {
		return features.NewPlane(p.W, p.H), nil
	}
	return features.NormalizeByMax(features.MaxOf(responses...)), nil
}

// convolve filters src with k using mirrored borders. Filter2D correlates, so
// the kernel is flipped first.
func convolve(src gocv.Mat, k features.Kernel) (features.Plane, error) {
	kernel, err := imaging.KernelMat(k.Flipped())
	if err != nil {
		return features.Plane{}, err
	}
	defer kernel.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Filter2D(src, &dst, gocv.MatTypeCV64F, kernel, image.Pt(-1, -1), 0, gocv.BorderReflect)
	return imaging.FloatPlane(dst)
}
