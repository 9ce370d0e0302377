package config

import (
	"fmt"
	"os"
)

// Encoder strategies.
const (
	StrategyONNX      = "onnx"      // local vision backbone
	StrategyJina      = "jina"      // joint text/image embedding API
	StrategyThumbnail = "thumbnail" // pure Go downsampled pixels
)

// EncoderConfig selects and parameterises the image encoder.
type EncoderConfig struct {
	Strategy    string    `mapstructure:"strategy"`
	ModelPath   string    `mapstructure:"model_path"`   // ONNX model file
	LibraryPath string    `mapstructure:"library_path"` // onnxruntime shared library
	InputSize   int       `mapstructure:"input_size"`   // square ONNX input resolution
	Mean        []float64 `mapstructure:"mean"`
	Std         []float64 `mapstructure:"std"`
	Threads     int       `mapstructure:"threads"`
	Model       string    `mapstructure:"model"`       // remote model id
	APIKey      string    `mapstructure:"api_key"`     // API key (can be set directly or via env var)
	APIKeyEnv   string    `mapstructure:"api_key_env"` // Environment variable name for API key
	BaseURL     string    `mapstructure:"base_url"`
	Dimensions  int       `mapstructure:"dimensions"`
}

// ResolveEnvVars loads APIKey from APIKeyEnv when it was not set directly.
func (c *EncoderConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}
}

// Validate checks that the encoder configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *EncoderConfig) Validate() error {
	switch c.Strategy {
	case StrategyONNX:
		if c.ModelPath == "" {
			return fmt.Errorf("encoder %q: model_path is required", c.Strategy)
		}
		if c.InputSize <= 0 {
			return fmt.Errorf("encoder %q: input_size must be positive", c.Strategy)
		}
	case StrategyJina:
		if c.Model == "" {
			return fmt.Errorf("encoder %q: model is required", c.Strategy)
		}
		if c.APIKey == "" {
			return fmt.Errorf("encoder %q: api_key is required (set directly or via %s)", c.Strategy, c.APIKeyEnv)
		}
		return nil
	case StrategyThumbnail:
		// fixed grid; input_size does not apply
	default:
		return fmt.Errorf("encoder: unknown strategy %q", c.Strategy)
	}

	if len(c.Mean) != 3 || len(c.Std) != 3 {
		return fmt.Errorf("encoder %q: mean and std need one value per RGB channel", c.Strategy)
	}
	for _, s := range c.Std {
		if s == 0 {
			return fmt.Errorf("encoder %q: std must be non-zero", c.Strategy)
		}
	}
	return nil
}

// SupportsText reports whether the strategy embeds label text into the image space.
func (c *EncoderConfig) SupportsText() bool {
	return c.Strategy == StrategyJina
}

// Clone creates a deep copy of the encoder configuration.
func (c *EncoderConfig) Clone() *EncoderConfig {
	clone := *c
	clone.Mean = append([]float64(nil), c.Mean...)
	clone.Std = append([]float64(nil), c.Std...)
	return &clone
}
