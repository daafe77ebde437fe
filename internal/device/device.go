// Package device validates compute device selection before any model is
// loaded.
package device

import (
	"fmt"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// Check fails fast when the requested CUDA device cannot be used. A negative
// id means CPU and always passes. The check runs before archive loading so a
// missing GPU is reported before any expensive work.
func Check(cudaDevice int) error {
	if cudaDevice < 0 {
		return nil
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	options, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("cuda device %d requested but CUDA is unavailable: %w", cudaDevice, err)
	}
	defer options.Destroy()

	if err := options.Update(map[string]string{"device_id": strconv.Itoa(cudaDevice)}); err != nil {
		return fmt.Errorf("cuda device %d does not exist: %w", cudaDevice, err)
	}
	return nil
}
