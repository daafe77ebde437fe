package predictor

import (
	"fmt"
)

// MockEngine is a mock implementation of Engine for testing and for running
// the driver without the ONNX shared library. It returns deterministic
// outputs derived from the inputs.
type MockEngine struct {
	// OutputDim is the number of values returned per input vector.
	OutputDim int
	// ShouldError if true, Predict will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Predict was called
	CallCount int
	// BatchSizes records the size of each batch Predict received
	BatchSizes []int
}

// NewMockEngine creates a MockEngine returning outputDim values per input.
func NewMockEngine(outputDim int) *MockEngine {
	return &MockEngine{OutputDim: outputDim}
}

// Predict returns, for each input vector, its element sum repeated OutputDim
// times. Deterministic and order-preserving, so a record always maps to the
// same output whatever batch it arrives in.
func (m *MockEngine) Predict(batch [][]float32) ([][]float32, error) {
	m.CallCount++
	m.BatchSizes = append(m.BatchSizes, len(batch))

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock engine error")
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty feature batch")
	}

	outputs := make([][]float32, len(batch))
	for i, row := range batch {
		var sum float32
		for _, v := range row {
			sum += v
		}
		out := make([]float32, m.OutputDim)
		for j := range out {
			out[j] = sum
		}
		outputs[i] = out
	}
	return outputs, nil
}

// Close is a no-op for the mock implementation
func (m *MockEngine) Close() error {
	return nil
}

// SetError configures the mock to return an error on the next Predict call
func (m *MockEngine) SetError(msg string) {
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockEngine) ClearError() {
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Ensure MockEngine implements Engine at compile time
var _ Engine = (*MockEngine)(nil)
