package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/core/inference"
	"leaf-backend/internal/core/preprocess"
	"leaf-backend/internal/core/saliency"
	"leaf-backend/internal/core/types"

	"gocv.io/x/gocv"
)

type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageNormalize  Stage = "normalize"
	StagePredict    Stage = "predict"
	StageExplain    Stage = "explain"
	StageOverlay    Stage = "overlay"
)

// StageError records which step of an analysis failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// ErrInvalidOptions marks analysis options rejected before any work is done.
var ErrInvalidOptions = errors.New("invalid analysis options")

type KnowledgeSource interface {
	Lookup(label string) types.KnowledgeRecord
}

type Config struct {
	Vein    preprocess.VeinParams
	Texture preprocess.TextureParams
	Layer   string
	Mode    saliency.Mode
	TopK    int
}

func DefaultConfig() Config {
	return Config{
		Vein:    preprocess.DefaultVeinParams(),
		Texture: preprocess.DefaultTextureParams(),
		Layer:   saliency.DefaultLayer,
		Mode:    saliency.DefaultMode,
		TopK:    inference.DefaultTopK,
	}
}

type AnalyzeOptions struct {
	TopK int
	Mode saliency.Mode
	// Layer defaults to the configured saliency layer.
	Layer string
	// ClassIndex selects the class to explain, nil explains the prediction.
	ClassIndex *int
	Explain    bool
}

type Timings struct {
	Preprocess time.Duration
	Predict    time.Duration
	Explain    time.Duration
}

type Analysis struct {
	Predictions types.Prediction
	Top         []types.RankedPrediction
	Predicted   types.RankedPrediction
	Knowledge   types.KnowledgeRecord

	// Set when an explanation was requested.
	ExplainedClass int
	Layer          string
	Mode           saliency.Mode
	Saliency       types.SaliencyMap
	Overlay        []byte

	Timings Timings
}

// Pipeline binds preprocessing, the shared classifier, the saliency engine and
// the knowledge table into a single request flow.
type Pipeline struct {
	classifier *inference.Classifier
	preprocess *preprocess.Pipeline
	knowledge  KnowledgeSource
	config     Config
}

func NewPipeline(classifier *inference.Classifier, segmenter preprocess.Segmenter, knowledge KnowledgeSource, config Config) *Pipeline {
	h, w := classifier.InputSize()
	return &Pipeline{
		classifier: classifier,
		preprocess: preprocess.NewPipeline(segmenter, preprocess.Config{
			Height:  h,
			Width:   w,
			Vein:    config.Vein,
			Texture: config.Texture,
		}),
		knowledge: knowledge,
		config:    config,
	}
}

func (p *Pipeline) Classifier() *inference.Classifier {
	return p.classifier
}

func (p *Pipeline) Classes() []string {
	return p.classifier.Classes()
}

func (p *Pipeline) KnowledgeLoaded() bool {
	return p.knowledge != nil
}

func (p *Pipeline) Lookup(label string) types.KnowledgeRecord {
	if p.knowledge == nil {
		return types.PlaceholderRecord()
	}
	return p.knowledge.Lookup(label)
}

func (p *Pipeline) resolve(opts AnalyzeOptions) (AnalyzeOptions, error) {
	if opts.TopK <= 0 {
		opts.TopK = p.config.TopK
	}
	if opts.Mode == "" {
		opts.Mode = p.config.Mode
	}
	if opts.Layer == "" {
		opts.Layer = p.config.Layer
	}
	if !opts.Explain {
		return opts, nil
	}
	if opts.Mode != saliency.GradCAM && opts.Mode != saliency.GradCAMPlusPlus {
		return opts, fmt.Errorf("%w: unknown saliency mode %q", ErrInvalidOptions, opts.Mode)
	}
	if !p.classifier.HasLayer(opts.Layer) {
		return opts, fmt.Errorf("%w: %w: %q, available layers: %v", ErrInvalidOptions, inference.ErrLayerNotFound, opts.Layer, p.classifier.Layers())
	}
	if opts.ClassIndex != nil && (*opts.ClassIndex < 0 || *opts.ClassIndex >= len(p.classifier.Classes())) {
		return opts, fmt.Errorf("%w: class index %d out of range [0, %d)", ErrInvalidOptions, *opts.ClassIndex, len(p.classifier.Classes()))
	}
	return opts, nil
}

// Analyze classifies one encoded image and optionally explains the result.
func (p *Pipeline) Analyze(ctx context.Context, data []byte, opts AnalyzeOptions) (*Analysis, error) {
	opts, err := p.resolve(opts)
	if err != nil {
		return nil, stageError(StageExplain, err)
	}

	start := time.Now()
	modalities, err := p.preprocess.Run(data)
	if err != nil {
		return nil, stageError(StagePreprocess, err)
	}
	defer modalities.Close()
	out := &Analysis{Timings: Timings{Preprocess: time.Since(start)}}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs, err := NormalizeModalities(modalities)
	if err != nil {
		return nil, stageError(StageNormalize, err)
	}

	start = time.Now()
	pred, inputs, err := p.classifier.Predict(inputs)
	if err != nil {
		return nil, stageError(StagePredict, err)
	}
	out.Timings.Predict = time.Since(start)

	out.Predictions = pred
	out.Top = inference.TopK(pred.Probabilities, p.classifier.Classes(), opts.TopK)
	out.Predicted = out.Top[0]
	out.Knowledge = p.Lookup(out.Predicted.Label)

	if !opts.Explain {
		slog.Debug("analysis complete", "class", out.Predicted.Label, "confidence", out.Predicted.Probability)
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	class := out.Predicted.Index
	if opts.ClassIndex != nil {
		class = *opts.ClassIndex
	}

	start = time.Now()
	smap, explained, err := saliency.Explain(p.classifier, inputs, opts.Layer, class, opts.Mode)
	if err != nil {
		return nil, stageError(StageExplain, err)
	}
	out.Timings.Explain = time.Since(start)
	out.Saliency = smap
	out.ExplainedClass = explained
	out.Layer = opts.Layer
	out.Mode = opts.Mode

	overlay, err := renderOverlay(modalities.Clean, smap)
	if err != nil {
		return nil, stageError(StageOverlay, err)
	}
	out.Overlay = overlay

	slog.Debug("analysis complete", "class", out.Predicted.Label, "confidence", out.Predicted.Probability,
		"explained_class", explained, "mode", opts.Mode, "layer", opts.Layer,
		"preprocess", out.Timings.Preprocess, "predict", out.Timings.Predict, "explain", out.Timings.Explain)
	return out, nil
}

// NormalizeModalities converts the resized modalities into network inputs.
func NormalizeModalities(m *preprocess.Modalities) (inference.Inputs, error) {
	var in inference.Inputs
	var err error
	if in.RGB, err = imaging.Normalize(m.RGB); err != nil {
		return inference.Inputs{}, fmt.Errorf("%s: %w", types.RGB, err)
	}
	if in.Vein, err = imaging.Normalize(m.Vein); err != nil {
		return inference.Inputs{}, fmt.Errorf("%s: %w", types.Vein, err)
	}
	if in.Texture, err = imaging.Normalize(m.Texture); err != nil {
		return inference.Inputs{}, fmt.Errorf("%s: %w", types.Texture, err)
	}
	return in, nil
}

func renderOverlay(clean gocv.Mat, m types.SaliencyMap) ([]byte, error) {
	overlay, err := imaging.Overlay(clean, m)
	if err != nil {
		return nil, err
	}
	defer overlay.Close()
	return imaging.EncodePNG(overlay)
}
