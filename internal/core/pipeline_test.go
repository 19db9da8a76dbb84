package core_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"leaf-backend/internal/core"
	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/core/inference"
	"leaf-backend/internal/core/preprocess"
	"leaf-backend/internal/core/saliency"
	"leaf-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labels = []string{"alpinia_galanga", "azadirachta_indica", "jasminum"}

// channelNetwork scores class k by the sum of channel k of a 4x4 activation
// grid. Class 1 has a hotspot in the top left corner.
type channelNetwork struct {
	probs     []float32
	gradCalls int
	lastInput inference.Inputs
}

func (n *channelNetwork) Classes() []string     { return labels }
func (n *channelNetwork) InputSize() (int, int) { return 32, 32 }
func (n *channelNetwork) Layers() []string      { return []string{saliency.DefaultLayer} }
func (n *channelNetwork) Close()                {}

func (n *channelNetwork) Predict(in inference.Inputs) ([]float32, error) {
	if err := in.Validate(32, 32); err != nil {
		return nil, err
	}
	n.lastInput = in
	return n.probs, nil
}

func (n *channelNetwork) Gradients(in inference.Inputs, layer string, class int) (types.Tensor, types.Tensor, []float32, error) {
	n.gradCalls++
	if layer != saliency.DefaultLayer {
		return types.Tensor{}, types.Tensor{}, nil, inference.ErrLayerNotFound
	}
	acts := types.NewTensor(1, 4, 4, 3)
	grads := types.NewTensor(1, 4, 4, 3)
	for i := 0; i < 16; i++ {
		acts.Data[i*3+0] = 1
		acts.Data[i*3+2] = 1
		grads.Data[i*3+class] = 1
	}
	acts.Data[1] = 4
	return acts, grads, n.probs, nil
}

type staticKnowledge map[string]types.KnowledgeRecord

func (k staticKnowledge) Lookup(label string) types.KnowledgeRecord {
	if rec, ok := k[label]; ok {
		return rec
	}
	return types.PlaceholderRecord()
}

func leafPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 30, G: 140, B: 45, A: 255}
			if y == h/2 || x%7 == 0 {
				c = color.RGBA{R: 15, G: 60, B: 20, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newPipeline(net *channelNetwork) *core.Pipeline {
	kb := staticKnowledge{"azadirachta_indica": {ScientificName: "Azadirachta indica", Available: true}}
	return core.NewPipeline(inference.NewClassifier(net, inference.ActivationSoftmax), nil, kb, core.DefaultConfig())
}

func TestAnalyzeExplainsPrediction(t *testing.T) {
	net := &channelNetwork{probs: []float32{0.2, 0.7, 0.1}}
	p := newPipeline(net)

	analysis, err := p.Analyze(context.Background(), leafPNG(t, 48, 40), core.AnalyzeOptions{Explain: true})
	require.NoError(t, err)

	assert.Equal(t, "azadirachta_indica", analysis.Predicted.Label)
	assert.InDelta(t, 0.7, analysis.Predicted.Probability, 1e-6)
	assert.Len(t, analysis.Top, 3)
	assert.Equal(t, []string{"azadirachta_indica", "alpinia_galanga", "jasminum"},
		[]string{analysis.Top[0].Label, analysis.Top[1].Label, analysis.Top[2].Label})
	assert.True(t, analysis.Knowledge.Available)
	assert.Equal(t, "Azadirachta indica", analysis.Knowledge.ScientificName)

	assert.Equal(t, 1, analysis.ExplainedClass)
	assert.Equal(t, saliency.GradCAMPlusPlus, analysis.Mode)
	assert.Equal(t, saliency.DefaultLayer, analysis.Layer)
	assert.Equal(t, 1, net.gradCalls)

	// class 1 reads channel 1 which is zero except the hotspot
	assert.InDelta(t, 1.0, analysis.Saliency.At(0, 0), 1e-6)
	assert.InDelta(t, 0.0, analysis.Saliency.At(3, 3), 1e-6)

	header, err := imaging.Sniff(analysis.Overlay)
	require.NoError(t, err)
	assert.Equal(t, "png", header.Format)
	assert.Equal(t, 48, header.Width)
	assert.Equal(t, 40, header.Height)

	for _, m := range types.Modalities {
		h, w, c, err := net.lastInput.ByModality(m).Spatial()
		require.NoError(t, err)
		assert.Equal(t, []int{32, 32, 3}, []int{h, w, c})
		for _, v := range net.lastInput.ByModality(m).Data {
			require.True(t, v >= -1 && v <= 1)
		}
	}
}

func TestAnalyzeWithoutExplanation(t *testing.T) {
	net := &channelNetwork{probs: []float32{0.1, 0.1, 0.8}}
	p := newPipeline(net)

	analysis, err := p.Analyze(context.Background(), leafPNG(t, 32, 32), core.AnalyzeOptions{TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, "jasminum", analysis.Predicted.Label)
	assert.Len(t, analysis.Top, 1)
	assert.False(t, analysis.Knowledge.Available)
	assert.Nil(t, analysis.Overlay)
	assert.Equal(t, 0, net.gradCalls)
}

func TestAnalyzeExplicitClass(t *testing.T) {
	net := &channelNetwork{probs: []float32{0.2, 0.7, 0.1}}
	p := newPipeline(net)

	class := 0
	analysis, err := p.Analyze(context.Background(), leafPNG(t, 32, 32), core.AnalyzeOptions{
		Explain:    true,
		ClassIndex: &class,
		Mode:       saliency.GradCAM,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, analysis.ExplainedClass)
	assert.Equal(t, "azadirachta_indica", analysis.Predicted.Label)
	assert.Equal(t, float32(1), analysis.Saliency.At(0, 0))
}

func TestAnalyzeErrors(t *testing.T) {
	net := &channelNetwork{probs: []float32{0.2, 0.7, 0.1}}
	p := newPipeline(net)

	_, err := p.Analyze(context.Background(), []byte("not an image"), core.AnalyzeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, preprocess.ErrInvalidImage))
	stage, ok := core.FailedStage(err)
	assert.True(t, ok)
	assert.Equal(t, core.StagePreprocess, stage)

	_, err = p.Analyze(context.Background(), leafPNG(t, 32, 32), core.AnalyzeOptions{Explain: true, Layer: "conv_1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, inference.ErrLayerNotFound))
	assert.Contains(t, err.Error(), "conv_1")

	class := 7
	_, err = p.Analyze(context.Background(), leafPNG(t, 32, 32), core.AnalyzeOptions{Explain: true, ClassIndex: &class})
	assert.Error(t, err)

	_, err = p.Analyze(context.Background(), leafPNG(t, 32, 32), core.AnalyzeOptions{Explain: true, Mode: "lime"})
	assert.ErrorIs(t, err, core.ErrInvalidOptions)
	assert.Equal(t, 0, net.gradCalls)

	bad := &channelNetwork{probs: []float32{0.5, 0.6}}
	_, err = newPipeline(bad).Analyze(context.Background(), leafPNG(t, 32, 32), core.AnalyzeOptions{})
	require.Error(t, err)
	stage, _ = core.FailedStage(err)
	assert.Equal(t, core.StagePredict, stage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Analyze(ctx, leafPNG(t, 32, 32), core.AnalyzeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeIsRepeatable(t *testing.T) {
	net := &channelNetwork{probs: []float32{0.2, 0.7, 0.1}}
	p := newPipeline(net)
	img := leafPNG(t, 50, 37)

	first, err := p.Analyze(context.Background(), img, core.AnalyzeOptions{Explain: true})
	require.NoError(t, err)
	firstInput := net.lastInput

	second, err := p.Analyze(context.Background(), img, core.AnalyzeOptions{Explain: true})
	require.NoError(t, err)

	for _, m := range types.Modalities {
		assert.Equal(t, firstInput.ByModality(m).Data, net.lastInput.ByModality(m).Data, m)
	}
	assert.Equal(t, first.Top, second.Top)
	assert.Equal(t, first.Saliency, second.Saliency)
	assert.Equal(t, first.Overlay, second.Overlay)
}
