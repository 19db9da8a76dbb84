package features

import "math"

// Kernel is a dense 2D filter, row-major.
type Kernel struct {
	W, H int
	Data []float64
}

// Flipped returns the kernel rotated by 180 degrees. Correlating with the
// flipped kernel is a convolution with the original.
func (k Kernel) Flipped() Kernel {
	out := Kernel{W: k.W, H: k.H, Data: make([]float64, len(k.Data))}
	n := len(k.Data)
	for i, v := range k.Data {
		out.Data[n-1-i] = v
	}
	return out
}

type GaborParams struct {
	Frequency float64
	Theta     float64
	Bandwidth float64
	NStds     float64
}

func gaborSigma(frequency, bandwidth float64) float64 {
	b := math.Pow(2, bandwidth)
	return 1 / math.Pi * math.Sqrt(math.Ln2/2) * (b + 1) / (b - 1) / frequency
}

// GaborKernel builds the complex gabor kernel as separate real and imaginary
// parts, sized to cover NStds standard deviations of the rotated envelope.
func GaborKernel(params GaborParams) (re, im Kernel) {
	sigma := gaborSigma(params.Frequency, params.Bandwidth)
	cosT, sinT := math.Cos(params.Theta), math.Sin(params.Theta)

	half := math.Ceil(math.Max(math.Abs(params.NStds*sigma*cosT), math.Max(math.Abs(params.NStds*sigma*sinT), 1)))
	rx, ry := int(half), int(half)

	w, h := 2*rx+1, 2*ry+1
	re = Kernel{W: w, H: h, Data: make([]float64, w*h)}
	im = Kernel{W: w, H: h, Data: make([]float64, w*h)}

	norm := 1 / (2 * math.Pi * sigma * sigma)
	for yi := -ry; yi <= ry; yi++ {
		for xi := -rx; xi <= rx; xi++ {
			x, y := float64(xi), float64(yi)
			rotx := x*cosT + y*sinT
			roty := -x*sinT + y*cosT
			env := norm * math.Exp(-0.5*(rotx*rotx/(sigma*sigma)+roty*roty/(sigma*sigma)))
			phase := 2 * math.Pi * params.Frequency * rotx
			// Rows follow x and columns follow y.
			idx := (xi+rx)*w + (yi + ry)
			re.Data[idx] = env * math.Cos(phase)
			im.Data[idx] = env * math.Sin(phase)
		}
	}
	return re, im
}

// GaborBank lists every frequency and orientation pair used for texture
// energy.
func GaborBank(frequencies, thetas []float64, bandwidth, nStds float64) []GaborParams {
	bank := make([]GaborParams, 0, len(frequencies)*len(thetas))
	for _, f := range frequencies {
		for _, t := range thetas {
			bank = append(bank, GaborParams{Frequency: f, Theta: t, Bandwidth: bandwidth, NStds: nStds})
		}
	}
	return bank
}

// Correlate applies k to p with the given border handling and the kernel
// anchored at its center. It is the pure Go reference for the OpenCV
// filtering in the texture pipeline and is not used on the request path.
func Correlate(p Plane, k Kernel, border Border) Plane {
	out := NewPlane(p.W, p.H)
	ax, ay := k.W/2, k.H/2
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			acc := 0.0
			for ky := 0; ky < k.H; ky++ {
				sy := borderIndex(y+ky-ay, p.H, border)
				for kx := 0; kx < k.W; kx++ {
					sx := borderIndex(x+kx-ax, p.W, border)
					acc += k.Data[ky*k.W+kx] * p.Pix[sy*p.W+sx]
				}
			}
			out.Pix[y*p.W+x] = acc
		}
	}
	return out
}

// Magnitude combines the real and imaginary responses of a complex filter.
func Magnitude(re, im Plane) Plane {
	out := NewPlane(re.W, re.H)
	for i := range out.Pix {
		out.Pix[i] = math.Hypot(re.Pix[i], im.Pix[i])
	}
	return out
}
