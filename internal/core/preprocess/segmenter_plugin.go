package preprocess

import (
	"fmt"
	"os/exec"
	"sync"

	"leaf-backend/internal/core/imaging"
	"leaf-backend/plugin/shared"

	"github.com/hashicorp/go-plugin"
	"gocv.io/x/gocv"
)

// PluginSegmenter delegates segmentation to an out of process binary served
// with go-plugin.
type PluginSegmenter struct {
	mu        sync.Mutex
	client    *plugin.Client
	segmenter shared.Segmenter
}

func LoadPluginSegmenter(executable string, args ...string) (*PluginSegmenter, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  shared.Handshake,
		Plugins:          shared.PluginMap,
		Cmd:              exec.Command(executable, args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error establishing RPC connection: %w", err)
	}

	raw, err := rpcClient.Dispense(shared.PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error dispensing '%s': %w", shared.PluginName, err)
	}

	segmenter, ok := raw.(shared.Segmenter)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("dispensed interface '%s' is not of expected type shared.Segmenter (actual type: %T)", shared.PluginName, raw)
	}

	return &PluginSegmenter{client: client, segmenter: segmenter}, nil
}

// NewRemoteSegmenter wraps an already dispensed segmenter.
func NewRemoteSegmenter(segmenter shared.Segmenter) *PluginSegmenter {
	return &PluginSegmenter{segmenter: segmenter}
}

func (s *PluginSegmenter) Segment(rgb gocv.Mat) (gocv.Mat, error) {
	pix := rgb.ToBytes()
	frame := shared.Frame{Width: rgb.Cols(), Height: rgb.Rows(), Channels: rgb.Channels(), Pix: pix}

	s.mu.Lock()
	if s.segmenter == nil {
		s.mu.Unlock()
		return gocv.NewMat(), fmt.Errorf("segmenter plugin is closed")
	}
	mask, err := s.segmenter.Segment(frame)
	s.mu.Unlock()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("segmenter plugin error: %w", err)
	}

	if mask.Channels != 1 || mask.Width != frame.Width || mask.Height != frame.Height {
		return gocv.NewMat(), fmt.Errorf("segmenter plugin returned %dx%dx%d mask for %dx%d image", mask.Width, mask.Height, mask.Channels, frame.Width, frame.Height)
	}
	return imaging.GrayMat(mask.Width, mask.Height, mask.Pix)
}

func (s *PluginSegmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Kill()
		s.client = nil
	}
	s.segmenter = nil
}

// FrameSegmenter adapts a Segmenter to the plugin frame interface so it can
// be served by the plugin binary.
type FrameSegmenter struct {
	Segmenter Segmenter
}

func (f FrameSegmenter) Segment(rgb shared.Frame) (shared.Frame, error) {
	if rgb.Channels != 3 {
		return shared.Frame{}, fmt.Errorf("expected 3 channels, found %d", rgb.Channels)
	}
	mat, err := imaging.ColorMat(rgb.Width, rgb.Height, rgb.Pix)
	if err != nil {
		return shared.Frame{}, err
	}
	defer mat.Close()

	mask, err := f.Segmenter.Segment(mat)
	if err != nil {
		return shared.Frame{}, err
	}
	defer mask.Close()

	return shared.Frame{Width: mask.Cols(), Height: mask.Rows(), Channels: mask.Channels(), Pix: mask.ToBytes()}, nil
}
