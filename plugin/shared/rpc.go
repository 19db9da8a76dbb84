package shared

import (
	"fmt"
	"net/rpc"
)

// RPCClient is an implementation of Segmenter that talks over RPC.
type RPCClient struct{ client *rpc.Client }

func (m *RPCClient) Segment(rgb Frame) (Frame, error) {
	var resp Frame
	err := m.client.Call("Plugin.Segment", rgb, &resp)
	return resp, err
}

// Here is the RPC server that RPCClient talks to, conforming to
// the requirements of net/rpc
type RPCServer struct {
	// This is the real implementation
	Impl Segmenter
}

func (m *RPCServer) Segment(rgb Frame, resp *Frame) error {
	if rgb.Channels != 3 || len(rgb.Pix) != rgb.Width*rgb.Height*3 {
		return fmt.Errorf("expected %dx%d RGB frame, got %d channels and %d bytes", rgb.Width, rgb.Height, rgb.Channels, len(rgb.Pix))
	}
	v, err := m.Impl.Segment(rgb)
	*resp = v
	return err
}
