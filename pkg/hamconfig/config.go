// Package hamconfig holds the YAML-file configuration for the
// hammertime-demo driver: which fliptable and memory-system descriptor
// to load, how the predictor should be parameterised, and the ambient
// logging/metrics settings. None of this is part of the core pipeline
// spec describes; it is the peripheral plumbing a runnable binary needs
// around it.
package hamconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vusec/hammertime-go/pkg/hammerlog"
)

// PredictorMode selects the fliptable predictor's hammer distance.
type PredictorMode string

const (
	ModeSingleSided PredictorMode = "single_sided"
	ModeDoubleSided PredictorMode = "double_sided"
)

// Dist returns the inter-aggressor row distance mode implies: 0 for
// single-sided, 2 for double-sided.
func (m PredictorMode) Dist() uint32 {
	if m == ModeDoubleSided {
		return 2
	}
	return 0
}

// ExtrapName is the YAML spelling of a fliptable extrapolation mode.
type ExtrapName string

const (
	ExtrapNone         ExtrapName = "none"
	ExtrapPerBank      ExtrapName = "per_bank"
	ExtrapPerBankTrunc ExtrapName = "per_bank_trunc"
	ExtrapPerBankFit   ExtrapName = "per_bank_fit"
)

// Config is the root of the demo driver's config file.
type Config struct {
	Fliptable string          `yaml:"fliptable"`
	Memsys    string          `yaml:"memsys"`
	Predictor PredictorConfig `yaml:"predictor"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PredictorConfig parameterises the fliptable predictor.
type PredictorConfig struct {
	Mode          PredictorMode `yaml:"mode"`
	Threshold     uint32        `yaml:"threshold"`
	Extrapolation ExtrapName    `yaml:"extrapolation"`
}

// LogConfig selects the ambient logger's verbosity and rendering.
type LogConfig struct {
	Level  hammerlog.Level  `yaml:"level"`
	Format hammerlog.Format `yaml:"format"`
}

// MetricsConfig configures the optional Prometheus exporter. An empty
// Listen disables the endpoint entirely.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration a bare `hammertime-demo` run uses
// when no config file is given.
func Default() *Config {
	return &Config{
		Fliptable: "./fixtures/sample.ftbl",
		Memsys:    "./fixtures/sample.msys",
		Predictor: PredictorConfig{
			Mode:          ModeDoubleSided,
			Threshold:     139000,
			Extrapolation: ExtrapPerBank,
		},
		Log: LogConfig{
			Level:  hammerlog.LevelInfo,
			Format: hammerlog.FormatText,
		},
		Metrics: MetricsConfig{
			Listen: ":9400",
		},
	}
}

// Load reads path as YAML over Default's values, expanding ${VAR}/$VAR
// environment references first, since the fliptable/memsys paths are
// the two values most likely to vary between environments. A missing
// file yields the defaults rather than an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("hamconfig: reading %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("hamconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}
