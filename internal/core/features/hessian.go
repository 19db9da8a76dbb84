package features

import "math"

// gradientX and gradientY follow numpy.gradient: central differences inside,
// first order one-sided differences on the edges.
func gradientX(p Plane) Plane {
	out := NewPlane(p.W, p.H)
	if p.W < 2 {
		return out
	}
	for y := 0; y < p.H; y++ {
		row := p.Pix[y*p.W : (y+1)*p.W]
		o := out.Pix[y*p.W : (y+1)*p.W]
		o[0] = row[1] - row[0]
		o[p.W-1] = row[p.W-1] - row[p.W-2]
		for x := 1; x < p.W-1; x++ {
			o[x] = (row[x+1] - row[x-1]) / 2
		}
	}
	return out
}

func gradientY(p Plane) Plane {
	out := NewPlane(p.W, p.H)
	if p.H < 2 {
		return out
	}
	for x := 0; x < p.W; x++ {
		out.Pix[x] = p.Pix[p.W+x] - p.Pix[x]
		last := (p.H - 1) * p.W
		out.Pix[last+x] = p.Pix[last+x] - p.Pix[last-p.W+x]
	}
	for y := 1; y < p.H-1; y++ {
		for x := 0; x < p.W; x++ {
			out.Pix[y*p.W+x] = (p.Pix[(y+1)*p.W+x] - p.Pix[(y-1)*p.W+x]) / 2
		}
	}
	return out
}

// Hessian holds the scale normalised second derivatives of a smoothed plane.
type Hessian struct {
	RR, RC, CC Plane
}

func ComputeHessian(p Plane, sigma float64) Hessian {
	smoothed := Gaussian(p, sigma, BorderReflect)
	gr := gradientY(smoothed)
	gc := gradientX(smoothed)

	h := Hessian{RR: gradientY(gr), RC: gradientX(gr), CC: gradientX(gc)}
	s2 := sigma * sigma
	for i := range h.RR.Pix {
		h.RR.Pix[i] *= s2
		h.RC.Pix[i] *= s2
		h.CC.Pix[i] *= s2
	}
	return h
}

// Eigenvalues returns the two eigenvalues at index i ordered by absolute value.
func (h Hessian) Eigenvalues(i int) (small, large float64) {
	a, b, c := h.RR.Pix[i], h.RC.Pix[i], h.CC.Pix[i]
	tmp := math.Sqrt((a-c)*(a-c) + 4*b*b)
	l1 := (a + c + tmp) / 2
	l2 := (a + c - tmp) / 2
	if math.Abs(l1) <= math.Abs(l2) {
		return l1, l2
	}
	return l2, l1
}
