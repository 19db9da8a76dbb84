package types

// SaliencyMap is a single channel importance map with values in [0,1], stored row-major.
type SaliencyMap struct {
	Width  int
	Height int
	Values []float32
}

func (m SaliencyMap) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

func (m SaliencyMap) Max() float32 {
	var best float32
	for _, v := range m.Values {
		if v > best {
			best = v
		}
	}
	return best
}
