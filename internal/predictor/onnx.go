package predictor

import (
	"fmt"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig describes an ONNX Runtime session.
type ONNXConfig struct {
	// WeightsPath is the .onnx graph to load.
	WeightsPath string
	// InputName and OutputName are the graph's tensor names.
	InputName  string
	OutputName string
	// InputDim, when > 0, fixes the expected feature-vector length. Zero
	// means the length of the first vector in each batch is used.
	InputDim int
	// OutputDim is the length of each output vector.
	OutputDim int
	// CUDADevice selects a GPU execution provider when >= 0; -1 runs on CPU.
	CUDADevice int
}

// ONNXEngine wraps an ONNX Runtime session for serialized inference.
// It implements the Engine interface.
type ONNXEngine struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	cfg     ONNXConfig
}

// NewONNXEngine loads the ONNX graph named by cfg and prepares a session
// that supports variable batch sizes.
func NewONNXEngine(cfg ONNXConfig) (*ONNXEngine, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if cfg.CUDADevice >= 0 {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("cuda device %d requested but CUDA is unavailable: %w", cfg.CUDADevice, err)
		}
		defer cudaOptions.Destroy()
		if err := cudaOptions.Update(map[string]string{"device_id": strconv.Itoa(cfg.CUDADevice)}); err != nil {
			return nil, fmt.Errorf("failed to select cuda device %d: %w", cfg.CUDADevice, err)
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("failed to enable cuda execution provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.WeightsPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", cfg.WeightsPath, err)
	}

	return &ONNXEngine{session: session, cfg: cfg}, nil
}

// Predict packs the batch into a single [batch, dim] tensor, runs the
// session and splits the output back into per-record vectors.
func (e *ONNXEngine) Predict(batch [][]float32) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, fmt.Errorf("onnx session is closed")
	}
	n := int64(len(batch))
	if n == 0 {
		return nil, fmt.Errorf("empty feature batch")
	}

	dim := int64(e.cfg.InputDim)
	if dim == 0 {
		dim = int64(len(batch[0]))
	}

	data := make([]float32, 0, n*dim)
	for i, row := range batch {
		if int64(len(row)) != dim {
			return nil, fmt.Errorf("record %d has wrong feature length: got %d, expected %d", i, len(row), dim)
		}
		data = append(data, row...)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(n, dim), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outDim := int64(e.cfg.OutputDim)
	outputTensor, err := ort.NewTensor(ort.NewShape(n, outDim), make([]float32, n*outDim))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = e.session.Run(
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	flat := outputTensor.GetData()
	outputs := make([][]float32, n)
	for i := int64(0); i < n; i++ {
		row := make([]float32, outDim)
		copy(row, flat[i*outDim:(i+1)*outDim])
		outputs[i] = row
	}
	return outputs, nil
}

// Close releases the ONNX session resources.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return ort.DestroyEnvironment()
}

// Ensure ONNXEngine implements Engine at compile time
var _ Engine = (*ONNXEngine)(nil)
