package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("onnx session is closed")

// Model is a single-input, single-output network.
type Model interface {
	Run(in Tensor) (Tensor, error)
	Info() ModelInfo
	Close() error
}

// ModelInfo describes a loaded model. Dynamic dimensions are reported as -1.
type ModelInfo struct {
	Path        string
	InputName   string
	OutputName  string
	InputShape  []int64
	OutputShape []int64
}

// ModelFunc adapts a plain function to the Model interface.
type ModelFunc func(in Tensor) (Tensor, error)

// Run calls f(in).
func (f ModelFunc) Run(in Tensor) (Tensor, error) { return f(in) }

// Info returns an empty description.
func (f ModelFunc) Info() ModelInfo { return ModelInfo{Path: "func"} }

// Close is a no-op.
func (f ModelFunc) Close() error { return nil }

// SessionOptions configures how a model session is created.
type SessionOptions struct {
	NumThreads  int       // intra-op threads, 0 leaves the runtime default
	LibraryPath string    // explicit onnxruntime shared library, empty to search
	GPU         GPUConfig // CUDA execution provider settings
}

// DefaultSessionOptions returns CPU execution with four intra-op threads.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{NumThreads: 4, GPU: DefaultGPUConfig()}
}

// Session is an ONNX Runtime backed Model. Run may be called concurrently;
// Close waits for in-flight runs.
type Session struct {
	info    ModelInfo
	session *onnxruntime_go.DynamicAdvancedSession
	mu      sync.RWMutex
}

var envMu sync.Mutex

// InitEnvironment locates the runtime library and initializes the shared
// ONNX Runtime environment once per process.
func InitEnvironment(opts SessionOptions) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	if opts.LibraryPath != "" {
		if _, err := os.Stat(opts.LibraryPath); err != nil {
			return fmt.Errorf("onnxruntime library: %w", err)
		}
		onnxruntime_go.SetSharedLibraryPath(opts.LibraryPath)
	} else if err := SetONNXLibraryPath(opts.GPU.UseGPU); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// LoadModel opens the model at path. The model must have exactly one input
// and one output.
func LoadModel(path string, opts SessionOptions) (*Session, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", path, err)
	}
	if err := ValidateGPUConfig(opts.GPU); err != nil {
		return nil, err
	}
	if err := InitEnvironment(opts); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 input, got %d", path, len(inputs))
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 output, got %d", path, len(outputs))
	}

	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to destroy session options: %v\n", err)
		}
	}()

	if err := ConfigureSessionForGPU(sessionOptions, opts.GPU); err != nil {
		slog.Warn("GPU unavailable, using CPU", "model", path, "error", err)
	}
	if opts.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", path, err)
	}

	info := ModelInfo{
		Path:        path,
		InputName:   inputs[0].Name,
		OutputName:  outputs[0].Name,
		InputShape:  slices.Clone([]int64(inputs[0].Dimensions)),
		OutputShape: slices.Clone([]int64(outputs[0].Dimensions)),
	}
	slog.Debug("Model loaded",
		"path", path,
		"input", info.InputName,
		"input_shape", info.InputShape,
		"output_shape", info.OutputShape,
		"threads", opts.NumThreads,
		"gpu", opts.GPU.UseGPU)

	return &Session{info: info, session: session}, nil
}

// Info returns the model description.
func (s *Session) Info() ModelInfo { return s.info }

// Run executes the model on a float32 tensor. The returned data is owned by
// the caller.
func (s *Session) Run(in Tensor) (Tensor, error) {
	if err := in.Validate(); err != nil {
		return Tensor{}, fmt.Errorf("invalid input tensor: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Tensor{}, ErrSessionClosed
	}

	inputTensor, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(in.Shape...), in.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying input tensor: %v\n", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := s.session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying output tensor: %v\n", err)
		}
	}()

	floatTensor, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}
	return Tensor{
		Data:  slices.Clone(floatTensor.GetData()),
		Shape: slices.Clone([]int64(floatTensor.GetShape())),
	}, nil
}

// Close releases the runtime session. The environment stays initialized for
// other sessions.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session %s: %w", s.info.Path, err)
	}
	return nil
}
