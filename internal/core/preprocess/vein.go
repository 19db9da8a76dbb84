package preprocess

import (
	"fmt"
	"image"

	"leaf-backend/internal/core/features"
	"leaf-backend/internal/core/imaging"

	"gocv.io/x/gocv"
)

type VeinParams struct {
	CLAHEClipLimit float64
	CLAHETileSize  int
	Frangi         features.FrangiParams
	TophatSize     int
	LowPercentile  float64
	HighPercentile float64
}

func DefaultVeinParams() VeinParams {
	return VeinParams{
		CLAHEClipLimit: 2.0,
		CLAHETileSize:  8,
		Frangi:         features.DefaultFrangiParams(),
		TophatSize:     5,
		LowPercentile:  2,
		HighPercentile: 98,
	}
}

// VeinMap highlights the venation of a background free RGB leaf. The result
// is a single channel response replicated to three channels.
func VeinMap(rgb gocv.Mat, params VeinParams) (gocv.Mat, error) {
	green, err := imaging.Channel(rgb, 1)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error extracting green channel: %w", err)
	}
	defer green.Close()

	clahe := gocv.NewCLAHEWithParams(params.CLAHEClipLimit, image.Pt(params.CLAHETileSize, params.CLAHETileSize))
	defer clahe.Close()

	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(green, &equalized)

	plane, err := imaging.GrayPlane(equalized)
	if err != nil {
		return gocv.NewMat(), err
	}

	vessels := features.MinMaxScale(features.Frangi(plane, params.Frangi), 0, 255)
	vesselMat, err := imaging.GrayMat(vessels.W, vessels.H, vessels.TruncUint8())
	if err != nil {
		return gocv.NewMat(), err
	}
	defer vesselMat.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(params.TophatSize, params.TophatSize))
	defer kernel.Close()

	tophat := gocv.NewMat()
	defer tophat.Close()
	gocv.MorphologyEx(vesselMat, &tophat, gocv.MorphTophat, kernel)

	tophatPlane, err := imaging.GrayPlane(tophat)
	if err != nil {
		return gocv.NewMat(), err
	}
	stretched := features.ContrastStretch(tophatPlane, params.LowPercentile, params.HighPercentile)

	veins, err := imaging.GrayMat(stretched.W, stretched.H, stretched.TruncUint8())
	if err != nil {
		return gocv.NewMat(), err
	}
	defer veins.Close()

	return imaging.Gray3(veins), nil
}
