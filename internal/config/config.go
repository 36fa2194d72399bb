package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/layerscope/internal/architecture"
	"github.com/san-kum/layerscope/internal/inference"
)

const (
	DefaultModelType = architecture.MobileNetV2Vis
	DefaultSpeed     = 1.0
	DefaultTheme     = "default"
	DefaultLogLevel  = "info"
	DefaultSeed      = 1
	DefaultInputSize = 224
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	ModelType string        `yaml:"model_type"`
	ModelPath string        `yaml:"model_path"`
	ImagePath string        `yaml:"image_path"`
	Spacing   float64       `yaml:"spacing"`
	Speed     float64       `yaml:"speed"`
	Theme     string        `yaml:"theme"`
	LogLevel  string        `yaml:"log_level"`
	Backend   BackendConfig `yaml:"backend"`
	Capture   CaptureConfig `yaml:"capture"`
}

type BackendConfig struct {
	Seed    int64 `yaml:"seed"`
	Workers int   `yaml:"workers"`
	// InputSize overrides the input layer's declared height and width.
	InputSize int `yaml:"input_size"`
}

type CaptureConfig struct {
	DefaultHeight int `yaml:"default_height"`
	DefaultWidth  int `yaml:"default_width"`
	// Normalization is "unit", "symmetric", or empty for the model type's
	// own range.
	Normalization string `yaml:"normalization"`
}

func DefaultConfig() *Config {
	return &Config{
		ModelType: DefaultModelType,
		Speed:     DefaultSpeed,
		Theme:     DefaultTheme,
		LogLevel:  DefaultLogLevel,
		Backend: BackendConfig{
			Seed: DefaultSeed,
		},
		Capture: CaptureConfig{
			DefaultHeight: DefaultInputSize,
			DefaultWidth:  DefaultInputSize,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Speed <= 0 || math.IsNaN(c.Speed) || math.IsInf(c.Speed, 0) {
		return fmt.Errorf("%w: speed %v", ErrInvalid, c.Speed)
	}
	if c.Spacing < 0 {
		return fmt.Errorf("%w: spacing %v", ErrInvalid, c.Spacing)
	}
	switch c.Capture.Normalization {
	case "", "unit", "symmetric":
	default:
		return fmt.Errorf("%w: normalization %q", ErrInvalid, c.Capture.Normalization)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

// LayoutSpacing falls back to the model type's policy when unset.
func (c *Config) LayoutSpacing() float64 {
	if c.Spacing > 0 {
		return c.Spacing
	}
	return architecture.SpacingFor(c.ModelType)
}

func (c *Config) Normalization() inference.Normalization {
	if c.Capture.Normalization != "" {
		return inference.ParseNormalization(c.Capture.Normalization)
	}
	if architecture.SymmetricInput(c.ModelType) {
		return inference.NormalizeSymmetric
	}
	return inference.NormalizeUnit
}

func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
