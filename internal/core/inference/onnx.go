package inference

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"leaf-backend/internal/core/onnxrt"
	"leaf-backend/internal/core/types"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxNetwork runs the exported forward graph and, when present, the saliency
// graph that carries the gradient outputs.
type OnnxNetwork struct {
	manifest *Manifest
	layers   map[string]Layer
	forward  *ort.DynamicAdvancedSession
	// one session per exposed layer, each returning probabilities,
	// activations and gradients
	saliency map[string]*ort.DynamicAdvancedSession
}

// LoadOnnxNetwork opens the artifact in dir. The onnx environment must already
// be initialized through onnxrt.Init.
func LoadOnnxNetwork(dir string) (*OnnxNetwork, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	layers, err := BuildLayers(manifest.CustomLayers)
	if err != nil {
		return nil, err
	}

	forwardPath := manifest.Resolve(manifest.Forward.Path)
	if err := checkFile(forwardPath); err != nil {
		return nil, err
	}
	if err := checkGraphIO(forwardPath, manifest.Forward.Inputs.List(), []string{manifest.Forward.Output}); err != nil {
		return nil, err
	}

	forward, err := ort.NewDynamicAdvancedSession(forwardPath, manifest.Forward.Inputs.List(), []string{manifest.Forward.Output}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward session: %w", err)
	}

	net := &OnnxNetwork{
		manifest: manifest,
		layers:   layers,
		forward:  forward,
		saliency: map[string]*ort.DynamicAdvancedSession{},
	}

	if s := manifest.Saliency; s != nil {
		saliencyPath := manifest.Resolve(s.Path)
		if err := checkFile(saliencyPath); err != nil {
			net.Close()
			return nil, err
		}
		inputs := append(s.Inputs.List(), s.ClassInput)
		var outputs []string
		for _, t := range s.Layers {
			outputs = append(outputs, t.Activations, t.Gradients)
		}
		if err := checkGraphIO(saliencyPath, inputs, append(outputs, s.Output)); err != nil {
			net.Close()
			return nil, err
		}
		for name, t := range s.Layers {
			session, err := ort.NewDynamicAdvancedSession(saliencyPath, inputs, []string{s.Output, t.Activations, t.Gradients}, nil)
			if err != nil {
				net.Close()
				return nil, fmt.Errorf("failed to create saliency session for layer %q: %w", name, err)
			}
			net.saliency[name] = session
		}
	}

	slog.Info("loaded onnx network", "name", manifest.Name, "version", manifest.Version, "classes", len(manifest.Classes), "saliency_layers", net.Layers(), "custom_layers", len(layers))
	return net, nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model file %s: %w", path, err)
	}
	slog.Info("found model file", "path", path, "size_mb", float64(info.Size())/(1024*1024))
	return nil
}

// checkGraphIO makes sure every name the manifest refers to exists in the graph.
func checkGraphIO(path string, inputs, outputs []string) error {
	inInfo, outInfo, err := onnxrt.Describe(path)
	if err != nil {
		return err
	}
	has := func(infos []ort.InputOutputInfo, name string) bool {
		for _, info := range infos {
			if info.Name == name {
				return true
			}
		}
		return false
	}
	for _, name := range inputs {
		if !has(inInfo, name) {
			return fmt.Errorf("graph %s has no input %q (inputs: %v)", path, name, onnxrt.Names(inInfo))
		}
	}
	for _, name := range outputs {
		if !has(outInfo, name) {
			return fmt.Errorf("graph %s has no output %q (outputs: %v)", path, name, onnxrt.Names(outInfo))
		}
	}
	return nil
}

func (n *OnnxNetwork) Manifest() *Manifest {
	return n.manifest
}

func (n *OnnxNetwork) Classes() []string {
	return n.manifest.Classes
}

func (n *OnnxNetwork) InputSize() (int, int) {
	return n.manifest.InputSize[0], n.manifest.InputSize[1]
}

func (n *OnnxNetwork) Layers() []string {
	names := make([]string, 0, len(n.saliency))
	for name := range n.saliency {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *OnnxNetwork) inputValues(in Inputs) ([]ort.Value, func(), error) {
	h, w := n.InputSize()
	if err := in.Validate(h, w); err != nil {
		return nil, nil, err
	}
	var values []ort.Value
	release := func() {
		for _, v := range values {
			v.Destroy()
		}
	}
	for _, m := range types.Modalities {
		t := in.ByModality(m)
		// the session must not write into the caller's tensors
		data := make([]float32, len(t.Data))
		copy(data, t.Data)
		v, err := ort.NewTensor(ort.NewShape(t.Shape...), data)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("error creating %s tensor: %w", m, err)
		}
		values = append(values, v)
	}
	return values, release, nil
}

func (n *OnnxNetwork) Predict(in Inputs) ([]float32, error) {
	values, release, err := n.inputValues(in)
	if err != nil {
		return nil, err
	}
	defer release()

	outputs := []ort.Value{nil}
	if err := n.forward.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("forward run error: %w", err)
	}
	_, probs, err := onnxrt.Float32Output(outputs[0])
	if err != nil {
		return nil, err
	}
	return probs, nil
}

func (n *OnnxNetwork) Gradients(in Inputs, layer string, class int) (types.Tensor, types.Tensor, []float32, error) {
	session, ok := n.saliency[layer]
	if !ok {
		return types.Tensor{}, types.Tensor{}, nil, fmt.Errorf("%w: %q (available: %v)", ErrLayerNotFound, layer, n.Layers())
	}
	numClasses := len(n.manifest.Classes)
	if class < 0 || class >= numClasses {
		return types.Tensor{}, types.Tensor{}, nil, fmt.Errorf("class index %d out of range [0,%d)", class, numClasses)
	}

	values, release, err := n.inputValues(in)
	if err != nil {
		return types.Tensor{}, types.Tensor{}, nil, err
	}
	defer release()

	selector := make([]float32, numClasses)
	selector[class] = 1
	sel, err := ort.NewTensor(ort.NewShape(1, int64(numClasses)), selector)
	if err != nil {
		return types.Tensor{}, types.Tensor{}, nil, fmt.Errorf("error creating class selector: %w", err)
	}
	defer sel.Destroy()

	outputs := []ort.Value{nil, nil, nil}
	if err := session.Run(append(values, sel), outputs); err != nil {
		return types.Tensor{}, types.Tensor{}, nil, fmt.Errorf("saliency run error: %w", err)
	}

	_, probs, err := onnxrt.Float32Output(outputs[0])
	if err != nil {
		outputs[1].Destroy()
		outputs[2].Destroy()
		return types.Tensor{}, types.Tensor{}, nil, err
	}
	actShape, act, err := onnxrt.Float32Output(outputs[1])
	if err != nil {
		outputs[2].Destroy()
		return types.Tensor{}, types.Tensor{}, nil, err
	}
	gradShape, grad, err := onnxrt.Float32Output(outputs[2])
	if err != nil {
		return types.Tensor{}, types.Tensor{}, nil, err
	}

	return types.Tensor{Shape: actShape, Data: act}, types.Tensor{Shape: gradShape, Data: grad}, probs, nil
}

func (n *OnnxNetwork) Close() {
	if n.forward != nil {
		n.forward.Destroy()
		n.forward = nil
	}
	for name, s := range n.saliency {
		s.Destroy()
		delete(n.saliency, name)
	}
}
