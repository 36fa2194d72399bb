package config

import "sort"

var Presets = map[string]map[string]*Config{
	"mobilenetv2-vis": {
		"default": {
			ModelType: "mobilenetv2-vis", Spacing: 6, Speed: 1.0,
			Capture: CaptureConfig{DefaultHeight: 224, DefaultWidth: 224, Normalization: "symmetric"},
		},
		"fast": {
			ModelType: "mobilenetv2-vis", Spacing: 6, Speed: 2.0,
			Backend:   BackendConfig{InputSize: 96},
			Capture:   CaptureConfig{DefaultHeight: 96, DefaultWidth: 96, Normalization: "symmetric"},
		},
	},
	"mobilenetv2": {
		"default": {
			ModelType: "mobilenetv2", Spacing: 10, Speed: 1.0,
			Capture: CaptureConfig{DefaultHeight: 224, DefaultWidth: 224, Normalization: "symmetric"},
		},
		"preview": {
			ModelType: "mobilenetv2", Spacing: 10, Speed: 1.5,
			Backend:   BackendConfig{InputSize: 32},
			Capture:   CaptureConfig{DefaultHeight: 32, DefaultWidth: 32, Normalization: "symmetric"},
		},
	},
	"mobilenetv1": {
		"default": {
			ModelType: "mobilenetv1", Spacing: 10, Speed: 1.0,
			Capture: CaptureConfig{DefaultHeight: 224, DefaultWidth: 224, Normalization: "unit"},
		},
		"preview": {
			ModelType: "mobilenetv1", Spacing: 10, Speed: 1.5,
			Backend:   BackendConfig{InputSize: 32},
			Capture:   CaptureConfig{DefaultHeight: 32, DefaultWidth: 32, Normalization: "unit"},
		},
	},
	"simple": {
		"default": {
			ModelType: "simple", Spacing: 10, Speed: 1.0,
			Capture: CaptureConfig{DefaultHeight: 224, DefaultWidth: 224, Normalization: "unit"},
		},
		"small": {
			ModelType: "simple", Spacing: 10, Speed: 0.5,
			Backend:   BackendConfig{InputSize: 64},
			Capture:   CaptureConfig{DefaultHeight: 64, DefaultWidth: 64, Normalization: "unit"},
		},
	},
}

// GetPreset returns a copy, or nil if modelType or preset is unknown.
func GetPreset(modelType, preset string) *Config {
	modelPresets, ok := Presets[modelType]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	out := *cfg
	return &out
}

func ListPresets(modelType string) []string {
	modelPresets, ok := Presets[modelType]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply copies the preset's non-zero fields onto c.
func (c *Config) Apply(p *Config) {
	if p == nil {
		return
	}
	if p.ModelType != "" {
		c.ModelType = p.ModelType
	}
	if p.Spacing > 0 {
		c.Spacing = p.Spacing
	}
	if p.Speed > 0 {
		c.Speed = p.Speed
	}
	if p.Backend.InputSize > 0 {
		c.Backend.InputSize = p.Backend.InputSize
	}
	if p.Capture.DefaultHeight > 0 {
		c.Capture.DefaultHeight = p.Capture.DefaultHeight
	}
	if p.Capture.DefaultWidth > 0 {
		c.Capture.DefaultWidth = p.Capture.DefaultWidth
	}
	if p.Capture.Normalization != "" {
		c.Capture.Normalization = p.Capture.Normalization
	}
}
