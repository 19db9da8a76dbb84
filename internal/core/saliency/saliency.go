// Package saliency computes class activation maps from the activations and
// gradients of one fusion layer.
package saliency

import (
	"fmt"
	"math"
	"strings"

	"leaf-backend/internal/core/inference"
	"leaf-backend/internal/core/types"

	"gonum.org/v1/gonum/floats"
)

type Mode string

const (
	GradCAM         Mode = "gradcam"
	GradCAMPlusPlus Mode = "gradcam++"
)

const (
	DefaultLayer = "fused_reduce"
	DefaultMode  = GradCAMPlusPlus

	plusPlusEpsilon = 1e-8
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultMode, nil
	case "gradcam", "grad-cam", "standard":
		return GradCAM, nil
	case "gradcam++", "gradcampp", "grad-cam++", "plusplus":
		return GradCAMPlusPlus, nil
	default:
		return "", fmt.Errorf("unknown saliency mode %q", s)
	}
}

// GradientSource yields a layer's activations and the gradients of one class
// score with respect to them, plus the probabilities of that pass.
type GradientSource interface {
	Gradients(in inference.Inputs, layer string, class int) (activations, gradients types.Tensor, probabilities []float32, err error)
}

// Explain builds the saliency map of class at layer. A negative class selects
// the predicted class. The returned index is the class that was explained.
func Explain(src GradientSource, in inference.Inputs, layer string, class int, mode Mode) (types.SaliencyMap, int, error) {
	target := class
	if target < 0 {
		target = 0
	}
	acts, grads, probs, err := src.Gradients(in, layer, target)
	if err != nil {
		return types.SaliencyMap{}, -1, err
	}

	if class < 0 {
		predicted := types.Prediction{Probabilities: probs}.Argmax()
		if predicted < 0 {
			return types.SaliencyMap{}, -1, fmt.Errorf("saliency pass returned no probabilities")
		}
		if predicted != target {
			target = predicted
			acts, grads, _, err = src.Gradients(in, layer, target)
			if err != nil {
				return types.SaliencyMap{}, -1, err
			}
		}
	}

	m, err := Compute(acts, grads, mode)
	if err != nil {
		return types.SaliencyMap{}, -1, err
	}
	return m, target, nil
}

// Compute fuses [1,H,W,C] activations with their gradients into a map
// normalized to [0,1].
func Compute(acts, grads types.Tensor, mode Mode) (types.SaliencyMap, error) {
	h, w, c, err := acts.Spatial()
	if err != nil {
		return types.SaliencyMap{}, fmt.Errorf("activations: %w", err)
	}
	gh, gw, gc, err := grads.Spatial()
	if err != nil {
		return types.SaliencyMap{}, fmt.Errorf("gradients: %w", err)
	}
	if gh != h || gw != w || gc != c {
		return types.SaliencyMap{}, fmt.Errorf("gradients %dx%dx%d do not match activations %dx%dx%d", gh, gw, gc, h, w, c)
	}

	var weights []float64
	switch mode {
	case GradCAM:
		weights = meanGradientWeights(grads.Data, h*w, c)
	case GradCAMPlusPlus:
		weights = plusPlusWeights(acts.Data, grads.Data, h*w, c)
	default:
		return types.SaliencyMap{}, fmt.Errorf("unknown saliency mode %q", mode)
	}

	cam := make([]float64, h*w)
	for i := 0; i < h*w; i++ {
		cam[i] = floats.Dot(weights, toFloat64(acts.Data[i*c:(i+1)*c]))
	}
	return types.SaliencyMap{Width: w, Height: h, Values: normalize(cam)}, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func meanGradientWeights(grads []float32, n, c int) []float64 {
	weights := make([]float64, c)
	for i := 0; i < n; i++ {
		for k := 0; k < c; k++ {
			weights[k] += float64(grads[i*c+k])
		}
	}
	floats.Scale(1/float64(n), weights)
	return weights
}

// plusPlusWeights computes alpha = g^2 / (2 g^2 + sum_ij A g^3) per position
// and channel, then averages alpha * relu(g) over positions.
func plusPlusWeights(acts, grads []float32, n, c int) []float64 {
	sumAG3 := make([]float64, c)
	for i := 0; i < n; i++ {
		for k := 0; k < c; k++ {
			g := float64(grads[i*c+k])
			sumAG3[k] += float64(acts[i*c+k]) * g * g * g
		}
	}

	weights := make([]float64, c)
	for i := 0; i < n; i++ {
		for k := 0; k < c; k++ {
			g := float64(grads[i*c+k])
			if g <= 0 {
				continue
			}
			denom := 2*g*g + sumAG3[k]
			if denom == 0 {
				denom = plusPlusEpsilon
			}
			weights[k] += g * g / denom * g
		}
	}
	floats.Scale(1/float64(n), weights)
	return weights
}

// normalize applies ReLU and divides by the maximum. Maps without a positive
// finite maximum become all zero.
func normalize(cam []float64) []float32 {
	out := make([]float32, len(cam))
	mx := 0.0
	for _, v := range cam {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return out
		}
		if v > mx {
			mx = v
		}
	}
	if mx <= 0 {
		return out
	}
	for i, v := range cam {
		if v > 0 {
			out[i] = float32(v / mx)
		}
	}
	return out
}
