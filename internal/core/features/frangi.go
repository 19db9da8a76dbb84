package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

type FrangiParams struct {
	Sigmas []float64
	Alpha  float64
	Beta   float64
	// Gamma of zero means half the maximum Hessian norm at the first scale.
	Gamma float64
	// BlackRidges selects dark tubular structures on a bright background.
	BlackRidges bool
}

// ScaleRange expands a half open [start, stop) range into sigmas.
func ScaleRange(start, stop, step float64) []float64 {
	var sigmas []float64
	if step <= 0 {
		return sigmas
	}
	for s := start; s < stop-1e-9; s += step {
		sigmas = append(sigmas, s)
	}
	return sigmas
}

func DefaultFrangiParams() FrangiParams {
	return FrangiParams{
		Sigmas:      ScaleRange(1, 4, 1),
		Alpha:       0.5,
		Beta:        0.5,
		BlackRidges: true,
	}
}

// Frangi computes the multi-scale vesselness response, keeping the maximum
// response over all scales per pixel.
func Frangi(p Plane, params FrangiParams) Plane {
	out := NewPlane(p.W, p.H)
	if len(params.Sigmas) == 0 || p.W < 2 || p.H < 2 {
		return out
	}

	img := p
	if !params.BlackRidges {
		img = p.Clone()
		floats.Scale(-1, img.Pix)
	}

	betaSq := 2 * params.Beta * params.Beta
	gamma := params.Gamma

	for _, sigma := range params.Sigmas {
		h := ComputeHessian(img, sigma)

		n := len(img.Pix)
		small := make([]float64, n)
		large := make([]float64, n)
		norm := make([]float64, n)
		for i := 0; i < n; i++ {
			l1, l2 := h.Eigenvalues(i)
			small[i], large[i] = l1, l2
			norm[i] = math.Sqrt(l1*l1 + l2*l2)
		}

		if gamma == 0 {
			gamma = floats.Max(norm) / 2
			if gamma == 0 {
				gamma = 1
			}
		}
		gammaSq := 2 * gamma * gamma

		for i := 0; i < n; i++ {
			l2 := math.Max(large[i], 1e-10)
			rb := math.Abs(small[i]) / l2
			v := math.Exp(-rb*rb/betaSq) * (1 - math.Exp(-norm[i]*norm[i]/gammaSq))
			if v > out.Pix[i] {
				out.Pix[i] = v
			}
		}
	}
	return out
}
