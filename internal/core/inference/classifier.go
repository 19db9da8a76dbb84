package inference

import (
	"fmt"
	"sync"

	"leaf-backend/internal/core/types"
)

// Classifier serializes every call into a Network. The network is shared by
// all requests and is not assumed to be safe for concurrent use.
type Classifier struct {
	mu         sync.Mutex
	net        Network
	activation string
}

func NewClassifier(net Network, outputActivation string) *Classifier {
	if outputActivation == "" {
		outputActivation = ActivationSoftmax
	}
	return &Classifier{net: net, activation: outputActivation}
}

func (c *Classifier) Classes() []string {
	return c.net.Classes()
}

func (c *Classifier) InputSize() (int, int) {
	return c.net.InputSize()
}

func (c *Classifier) Layers() []string {
	return c.net.Layers()
}

// HasLayer reports whether saliency can be computed for layer.
func (c *Classifier) HasLayer(layer string) bool {
	for _, l := range c.net.Layers() {
		if l == layer {
			return true
		}
	}
	return false
}

// Predict runs the forward pass and returns the probabilities together with
// the unchanged inputs for a later explanation.
func (c *Classifier) Predict(in Inputs) (types.Prediction, Inputs, error) {
	c.mu.Lock()
	raw, err := c.net.Predict(in)
	c.mu.Unlock()
	if err != nil {
		return types.Prediction{}, in, err
	}
	pred, err := ToPrediction(raw, c.activation, len(c.net.Classes()))
	return pred, in, err
}

// Gradients implements the saliency gradient source on top of the network.
func (c *Classifier) Gradients(in Inputs, layer string, class int) (types.Tensor, types.Tensor, []float32, error) {
	c.mu.Lock()
	act, grad, raw, err := c.net.Gradients(in, layer, class)
	c.mu.Unlock()
	if err != nil {
		return types.Tensor{}, types.Tensor{}, nil, err
	}
	pred, err := ToPrediction(raw, c.activation, len(c.net.Classes()))
	if err != nil {
		return types.Tensor{}, types.Tensor{}, nil, fmt.Errorf("saliency pass: %w", err)
	}
	return act, grad, pred.Probabilities, nil
}

func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.net.Close()
}
