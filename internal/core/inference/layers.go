package inference

import (
	"fmt"
	"sort"
	"sync"
)

// Layer is the validated configuration of a custom layer baked into the
// exported graphs. Loading refuses artifacts whose custom layers are unknown
// to this build.
type Layer interface {
	Type() string
}

type LayerConstructor func(config map[string]interface{}) (Layer, error)

var (
	layerMu       sync.RWMutex
	layerRegistry = map[string]LayerConstructor{
		"ECA":              newECA,
		"SpatialAttention": newSpatialAttention,
		"MobileViTBlock":   newMobileViTBlock,
	}
)

// RegisterLayer adds or replaces the constructor for a custom layer type.
func RegisterLayer(layerType string, ctor LayerConstructor) {
	layerMu.Lock()
	defer layerMu.Unlock()
	layerRegistry[layerType] = ctor
}

func RegisteredLayers() []string {
	layerMu.RLock()
	defer layerMu.RUnlock()
	names := make([]string, 0, len(layerRegistry))
	for name := range layerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildLayers resolves every custom layer of a manifest.
func BuildLayers(specs []LayerSpec) (map[string]Layer, error) {
	layerMu.RLock()
	defer layerMu.RUnlock()

	layers := make(map[string]Layer, len(specs))
	for _, spec := range specs {
		ctor, ok := layerRegistry[spec.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %q used by layer %q", ErrUnregisteredLayer, spec.Type, spec.Name)
		}
		layer, err := ctor(spec.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid config for layer %q (%s): %w", spec.Name, spec.Type, err)
		}
		layers[spec.Name] = layer
	}
	return layers, nil
}

func intParam(config map[string]interface{}, key string, def int) (int, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be an integer, found %v", key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, found %T", key, raw)
	}
}

func positive(key string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, found %d", key, v)
	}
	return nil
}

// ECA is efficient channel attention with a 1D kernel over channels.
type ECA struct {
	KSize int
}

func (ECA) Type() string { return "ECA" }

func newECA(config map[string]interface{}) (Layer, error) {
	k, err := intParam(config, "k_size", 3)
	if err != nil {
		return nil, err
	}
	if err := positive("k_size", k); err != nil {
		return nil, err
	}
	if k%2 == 0 {
		return nil, fmt.Errorf("k_size must be odd, found %d", k)
	}
	return ECA{KSize: k}, nil
}

type SpatialAttention struct {
	KernelSize int
}

func (SpatialAttention) Type() string { return "SpatialAttention" }

func newSpatialAttention(config map[string]interface{}) (Layer, error) {
	k, err := intParam(config, "kernel_size", 7)
	if err != nil {
		return nil, err
	}
	if err := positive("kernel_size", k); err != nil {
		return nil, err
	}
	return SpatialAttention{KernelSize: k}, nil
}

// MobileViTBlock is the transformer block applied to unfolded patches.
type MobileViTBlock struct {
	NumHeads      int
	ProjectionDim int
	PatchH        int
	PatchW        int
}

func (MobileViTBlock) Type() string { return "MobileViTBlock" }

func newMobileViTBlock(config map[string]interface{}) (Layer, error) {
	b := MobileViTBlock{}
	var err error
	if b.NumHeads, err = intParam(config, "num_heads", 2); err != nil {
		return nil, err
	}
	if b.ProjectionDim, err = intParam(config, "projection_dim", 64); err != nil {
		return nil, err
	}
	if b.PatchH, err = intParam(config, "patch_h", 1); err != nil {
		return nil, err
	}
	if b.PatchW, err = intParam(config, "patch_w", 1); err != nil {
		return nil, err
	}
	for key, v := range map[string]int{"num_heads": b.NumHeads, "projection_dim": b.ProjectionDim, "patch_h": b.PatchH, "patch_w": b.PatchW} {
		if err := positive(key, v); err != nil {
			return nil, err
		}
	}
	if b.ProjectionDim%b.NumHeads != 0 {
		return nil, fmt.Errorf("projection_dim %d must be divisible by num_heads %d", b.ProjectionDim, b.NumHeads)
	}
	return b, nil
}
