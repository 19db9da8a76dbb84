package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is shared by the host and the segmenter binary so a mismatched
// build refuses to start.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "LEAF_SEGMENTER_PLUGIN",
	MagicCookieValue: "foreground",
}

const PluginName = "segmenter"

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]plugin.Plugin{
	PluginName: &SegmenterPlugin{},
}

// Frame is an 8-bit image with interleaved channels.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Segmenter is the interface exposed by the plugin: it takes an RGB frame and
// returns a single channel alpha mask of the same size.
type Segmenter interface {
	Segment(rgb Frame) (Frame, error)
}

// SegmenterPlugin serves a Segmenter over net/rpc.
type SegmenterPlugin struct {
	Impl Segmenter
}

func (p *SegmenterPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (SegmenterPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}
