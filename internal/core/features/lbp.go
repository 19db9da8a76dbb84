package features

import "math"

// bilinear samples p at a fractional position, treating everything outside
// the plane as zero.
func bilinear(p Plane, r, c float64) float64 {
	minr := int(math.Floor(r))
	minc := int(math.Floor(c))
	maxr := int(math.Ceil(r))
	maxc := int(math.Ceil(c))
	dr := r - float64(minr)
	dc := c - float64(minc)

	get := func(rr, cc int) float64 {
		if rr < 0 || rr >= p.H || cc < 0 || cc >= p.W {
			return 0
		}
		return p.Pix[rr*p.W+cc]
	}
	top := (1-dc)*get(minr, minc) + dc*get(minr, maxc)
	bottom := (1-dc)*get(maxr, minc) + dc*get(maxr, maxc)
	return (1-dr)*top + dr*bottom
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// UniformLBP computes the rotation invariant uniform local binary pattern
// with the given number of circular sample points and radius. Uniform
// patterns map to their number of set bits, all others to points+1.
func UniformLBP(p Plane, points int, radius float64) Plane {
	out := NewPlane(p.W, p.H)
	if points <= 0 {
		return out
	}

	offR := make([]float64, points)
	offC := make([]float64, points)
	for i := 0; i < points; i++ {
		angle := 2 * math.Pi * float64(i) / float64(points)
		offR[i] = round5(-radius * math.Sin(angle))
		offC[i] = round5(radius * math.Cos(angle))
	}

	bits := make([]bool, points)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			center := p.Pix[y*p.W+x]
			for i := 0; i < points; i++ {
				bits[i] = bilinear(p, float64(y)+offR[i], float64(x)+offC[i]) >= center
			}
			changes := 0
			ones := 0
			for i := 0; i < points; i++ {
				if bits[i] {
					ones++
				}
				if i > 0 && bits[i] != bits[i-1] {
					changes++
				}
			}
			if changes <= 2 {
				out.Pix[y*p.W+x] = float64(ones)
			} else {
				out.Pix[y*p.W+x] = float64(points + 1)
			}
		}
	}
	return out
}
