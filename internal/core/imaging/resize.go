package imaging

import (
	"image"

	"gocv.io/x/gocv"
)

// InterpolationFor picks area interpolation when shrinking along either axis
// and cubic interpolation otherwise.
func InterpolationFor(srcH, srcW, h, w int) gocv.InterpolationFlags {
	if srcH > h || srcW > w {
		return gocv.InterpolationArea
	}
	return gocv.InterpolationCubic
}

// ResizeTo resizes src to h rows by w columns.
func ResizeTo(src gocv.Mat, h, w int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, InterpolationFor(src.Rows(), src.Cols(), h, w))
	return dst
}
