package predictor

import (
	"fmt"

	"github.com/spf13/viper"
)

// Engine runs the model computation behind a predictor. It maps a batch of
// feature vectors to a batch of output vectors, one output row per input
// row, in order. This abstraction allows for easy mocking in tests and
// swapping implementations.
type Engine interface {
	// Predict runs the model on a batch of feature vectors and returns one
	// output vector per input, in input order.
	Predict(batch [][]float32) ([][]float32, error)

	// Close releases any resources held by the engine.
	Close() error
}

// engineFromConfig builds the engine described by the "engine" section of an
// archive configuration. The zero value of the section selects ONNX, the
// only real engine.
func engineFromConfig(cfg *viper.Viper, weightsPath string, cudaDevice int) (Engine, error) {
	kind := "onnx"
	if cfg != nil && cfg.GetString("type") != "" {
		kind = cfg.GetString("type")
	}

	switch kind {
	case "onnx":
		return NewONNXEngine(onnxSettings(cfg, weightsPath, cudaDevice))
	case "mock":
		dim := 1
		if cfg != nil && cfg.GetInt("output_dim") > 0 {
			dim = cfg.GetInt("output_dim")
		}
		return NewMockEngine(dim), nil
	default:
		return nil, fmt.Errorf("unknown engine type %q", kind)
	}
}

func onnxSettings(cfg *viper.Viper, weightsPath string, cudaDevice int) ONNXConfig {
	settings := ONNXConfig{
		WeightsPath: weightsPath,
		InputName:   "input",
		OutputName:  "output",
		OutputDim:   1,
		CUDADevice:  cudaDevice,
	}
	if cfg == nil {
		return settings
	}
	if name := cfg.GetString("input_name"); name != "" {
		settings.InputName = name
	}
	if name := cfg.GetString("output_name"); name != "" {
		settings.OutputName = name
	}
	if dim := cfg.GetInt("input_dim"); dim > 0 {
		settings.InputDim = dim
	}
	if dim := cfg.GetInt("output_dim"); dim > 0 {
		settings.OutputDim = dim
	}
	return settings
}
