package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Percentile uses linear interpolation between the closest ranks, matching
// numpy's default method. q is in [0, 100].
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q = math.Min(math.Max(q, 0), 100)
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// MinMaxScale linearly maps the range of p onto [lo, hi]. A constant plane
// maps to lo.
func MinMaxScale(p Plane, lo, hi float64) Plane {
	out := NewPlane(p.W, p.H)
	if len(p.Pix) == 0 {
		return out
	}
	mn, mx := floats.Min(p.Pix), floats.Max(p.Pix)
	if mx == mn {
		for i := range out.Pix {
			out.Pix[i] = lo
		}
		return out
	}
	scale := (hi - lo) / (mx - mn)
	for i, v := range p.Pix {
		out.Pix[i] = (v-mn)*scale + lo
	}
	return out
}

// Stretch clips p to [inLo, inHi] and maps that interval onto [0, 255].
// An empty input interval yields a zero plane.
func Stretch(p Plane, inLo, inHi float64) Plane {
	out := NewPlane(p.W, p.H)
	if inHi <= inLo {
		return out
	}
	scale := 255 / (inHi - inLo)
	for i, v := range p.Pix {
		v = math.Min(math.Max(v, inLo), inHi)
		out.Pix[i] = (v - inLo) * scale
	}
	return out
}

// ContrastStretch stretches p between its lowPct and highPct percentiles.
func ContrastStretch(p Plane, lowPct, highPct float64) Plane {
	lo := Percentile(p.Pix, lowPct)
	hi := Percentile(p.Pix, highPct)
	return Stretch(p, lo, hi)
}

// NormalizeByMax divides p by its maximum so the result is in [0, 1]. A
// plane with no positive values is returned as zeros.
func NormalizeByMax(p Plane) Plane {
	out := NewPlane(p.W, p.H)
	if len(p.Pix) == 0 {
		return out
	}
	mx := floats.Max(p.Pix)
	if mx <= 0 || math.IsNaN(mx) {
		return out
	}
	copy(out.Pix, p.Pix)
	floats.Scale(1/mx, out.Pix)
	return out
}

// MaxOf returns the elementwise maximum of the given planes.
func MaxOf(planes ...Plane) Plane {
	if len(planes) == 0 {
		return Plane{}
	}
	out := planes[0].Clone()
	for _, p := range planes[1:] {
		for i, v := range p.Pix {
			if v > out.Pix[i] {
				out.Pix[i] = v
			}
		}
	}
	return out
}

// UnsharpMask sharpens p, expected in [0, 1], by adding amount times the
// difference from its gaussian blur. The result is clipped to [0, 1].
func UnsharpMask(p Plane, radius, amount float64) Plane {
	blurred := Gaussian(p, radius, BorderNearest)
	out := NewPlane(p.W, p.H)
	for i, v := range p.Pix {
		s := v + (v-blurred.Pix[i])*amount
		out.Pix[i] = math.Min(math.Max(s, 0), 1)
	}
	return out
}
