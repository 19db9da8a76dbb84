package features

import "math"

type Border int

const (
	// BorderReflect mirrors including the edge sample: d c b a | a b c d.
	BorderReflect Border = iota
	// BorderNearest repeats the edge sample: a a a a | a b c d.
	BorderNearest
)

const gaussianTruncate = 4.0

func borderIndex(i, n int, border Border) int {
	if n == 1 {
		return 0
	}
	switch border {
	case BorderNearest:
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	default:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	}
}

func gaussianWeights(sigma float64) []float64 {
	radius := int(gaussianTruncate*sigma + 0.5)
	weights := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		weights[i+radius] = w
		sum += w
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// Gaussian smooths p with a separable gaussian of standard deviation sigma,
// truncated at four standard deviations.
func Gaussian(p Plane, sigma float64, border Border) Plane {
	if sigma <= 0 {
		return p.Clone()
	}
	weights := gaussianWeights(sigma)
	radius := len(weights) / 2

	tmp := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		row := p.Pix[y*p.W : (y+1)*p.W]
		for x := 0; x < p.W; x++ {
			acc := 0.0
			for k, w := range weights {
				acc += w * row[borderIndex(x+k-radius, p.W, border)]
			}
			tmp.Pix[y*p.W+x] = acc
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			acc := 0.0
			for k, w := range weights {
				acc += w * tmp.Pix[borderIndex(y+k-radius, p.H, border)*p.W+x]
			}
			out.Pix[y*p.W+x] = acc
		}
	}
	return out
}
