package preprocess

import (
	"fmt"
	"log/slog"
	"time"

	"leaf-backend/internal/core/imaging"

	"gocv.io/x/gocv"
)

type Config struct {
	Height  int
	Width   int
	Vein    VeinParams
	Texture TextureParams
}

func DefaultConfig(height, width int) Config {
	return Config{
		Height:  height,
		Width:   width,
		Vein:    DefaultVeinParams(),
		Texture: DefaultTextureParams(),
	}
}

// Modalities holds the outputs of one preprocessing run. Clean keeps the
// original size for overlays; the others are resized to the network input.
type Modalities struct {
	Clean   gocv.Mat
	RGB     gocv.Mat
	Vein    gocv.Mat
	Texture gocv.Mat
}

func (m *Modalities) Close() {
	for _, mat := range []*gocv.Mat{&m.Clean, &m.RGB, &m.Vein, &m.Texture} {
		if mat.Ptr() != nil {
			mat.Close()
		}
	}
}

// Pipeline runs background removal, modality synthesis and resizing. It is
// safe for concurrent use as long as the segmenter is.
type Pipeline struct {
	remover *BackgroundRemover
	config  Config
}

func NewPipeline(segmenter Segmenter, config Config) *Pipeline {
	return &Pipeline{remover: NewBackgroundRemover(segmenter), config: config}
}

func (p *Pipeline) Config() Config {
	return p.config
}

func (p *Pipeline) Run(data []byte) (*Modalities, error) {
	start := time.Now()

	clean, err := p.remover.Remove(data)
	if err != nil {
		return nil, err
	}
	out := &Modalities{Clean: clean}

	if err := p.synthesize(out); err != nil {
		out.Close()
		return nil, err
	}

	slog.Debug("preprocessing complete", "width", clean.Cols(), "height", clean.Rows(), "duration", time.Since(start))
	return out, nil
}

// RunMat is Run for an already decoded RGB image.
func (p *Pipeline) RunMat(rgb gocv.Mat) (*Modalities, error) {
	clean, err := p.remover.RemoveMat(rgb)
	if err != nil {
		return nil, err
	}
	out := &Modalities{Clean: clean}
	if err := p.synthesize(out); err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) synthesize(out *Modalities) error {
	vein, err := VeinMap(out.Clean, p.config.Vein)
	if err != nil {
		return fmt.Errorf("vein enhancement failed: %w", err)
	}
	defer vein.Close()

	texture, err := TextureMap(out.Clean, p.config.Texture)
	if err != nil {
		return fmt.Errorf("texture enhancement failed: %w", err)
	}
	defer texture.Close()

	out.RGB = imaging.ResizeTo(out.Clean, p.config.Height, p.config.Width)
	out.Vein = imaging.ResizeTo(vein, p.config.Height, p.config.Width)
	out.Texture = imaging.ResizeTo(texture, p.config.Height, p.config.Width)
	return nil
}
