package inference

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const ManifestFile = "manifest.yaml"

type InputNames struct {
	RGB     string `yaml:"rgb"`
	Vein    string `yaml:"vein"`
	Texture string `yaml:"texture"`
}

func (n InputNames) List() []string {
	return []string{n.RGB, n.Vein, n.Texture}
}

type GraphSpec struct {
	Path   string     `yaml:"path"`
	Inputs InputNames `yaml:"inputs"`
	Output string     `yaml:"output"`
}

type LayerTensors struct {
	Activations string `yaml:"activations"`
	Gradients   string `yaml:"gradients"`
}

// SaliencyGraphSpec describes a graph that takes the three inputs plus a one
// hot class selector and returns probabilities together with activations and
// gradients of the exposed layers.
type SaliencyGraphSpec struct {
	Path       string                  `yaml:"path"`
	Inputs     InputNames              `yaml:"inputs"`
	ClassInput string                  `yaml:"class_input"`
	Output     string                  `yaml:"output"`
	Layers     map[string]LayerTensors `yaml:"layers"`
}

type LayerSpec struct {
	Name   string                 `yaml:"name"`
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

type Manifest struct {
	Name             string             `yaml:"name"`
	Version          string             `yaml:"version"`
	Format           NetworkType        `yaml:"format"`
	InputSize        []int              `yaml:"input_size"`
	Classes          []string           `yaml:"classes"`
	OutputActivation string             `yaml:"output_activation"`
	Forward          GraphSpec          `yaml:"forward"`
	Saliency         *SaliencyGraphSpec `yaml:"saliency"`
	CustomLayers     []LayerSpec        `yaml:"custom_layers"`

	dir string
}

func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest %s: %w", path, err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	manifest.dir = dir
	return manifest, nil
}

// ParseManifest decodes and validates a manifest. Unknown sections, such as
// the optimizer and training settings stored next to the weights, are ignored.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	if m.Format == "" {
		m.Format = OnnxNetworkType
	}
	if m.OutputActivation == "" {
		m.OutputActivation = ActivationSoftmax
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) Validate() error {
	if len(m.InputSize) != 2 || m.InputSize[0] <= 0 || m.InputSize[1] <= 0 {
		return fmt.Errorf("input_size must be two positive integers, found %v", m.InputSize)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("classes must not be empty")
	}
	seen := map[string]bool{}
	for _, c := range m.Classes {
		if c == "" || seen[c] {
			return fmt.Errorf("class labels must be unique and non-empty, found %q", c)
		}
		seen[c] = true
	}
	switch m.OutputActivation {
	case ActivationSoftmax, ActivationLogits:
	default:
		return fmt.Errorf("unknown output_activation %q", m.OutputActivation)
	}
	if err := validateGraph("forward", m.Forward.Path, m.Forward.Inputs, m.Forward.Output); err != nil {
		return err
	}
	if m.Saliency != nil {
		s := m.Saliency
		if err := validateGraph("saliency", s.Path, s.Inputs, s.Output); err != nil {
			return err
		}
		if s.ClassInput == "" {
			return fmt.Errorf("saliency graph needs a class_input")
		}
		for name, t := range s.Layers {
			if t.Activations == "" || t.Gradients == "" {
				return fmt.Errorf("saliency layer %q needs activations and gradients outputs", name)
			}
		}
	}
	for _, l := range m.CustomLayers {
		if l.Name == "" || l.Type == "" {
			return fmt.Errorf("custom layers need a name and a type, found %+v", l)
		}
	}
	return nil
}

func validateGraph(kind, path string, inputs InputNames, output string) error {
	if path == "" {
		return fmt.Errorf("%s graph path is required", kind)
	}
	for _, name := range inputs.List() {
		if name == "" {
			return fmt.Errorf("%s graph needs rgb, vein and texture input names", kind)
		}
	}
	if output == "" {
		return fmt.Errorf("%s graph output name is required", kind)
	}
	return nil
}

// Resolve returns the path of a file referenced by the manifest.
func (m *Manifest) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(m.dir, rel)
}

func (m *Manifest) Dir() string {
	return m.dir
}
