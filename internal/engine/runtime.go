package engine

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/23skdu/longbow-ortbench/internal/logger"
)

// LibraryPathEnv is consulted when no shared library path is configured.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var ErrNotInitialized = errors.New("onnxruntime environment is not initialized")

// Runtime owns the process-wide ONNX Runtime environment.
type Runtime struct {
	mu          sync.Mutex
	libPath     string
	debug       bool
	initialized bool
	initErr     error
}

// NewRuntime prepares a runtime over libPath. With debug set the environment
// is created with verbose ONNX Runtime logging.
func NewRuntime(libPath string, debug bool) *Runtime {
	if libPath == "" {
		libPath = os.Getenv(LibraryPathEnv)
	}
	return &Runtime{libPath: libPath, debug: debug}
}

func envOptions(debug bool) []ort.EnvironmentOption {
	if debug {
		return []ort.EnvironmentOption{ort.WithLogLevelVerbose()}
	}
	return nil
}

// LibraryPath is the shared library the runtime loads, empty for the platform default.
func (r *Runtime) LibraryPath() string {
	return r.libPath
}

// Init loads the shared library and creates the environment. A failure is
// remembered so later calls return it without retrying.
func (r *Runtime) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}
	if r.initErr != nil {
		return r.initErr
	}
	if ort.IsInitialized() {
		r.initialized = true
		return nil
	}

	if r.libPath != "" {
		ort.SetSharedLibraryPath(r.libPath)
	}
	if err := ort.InitializeEnvironment(envOptions(r.debug)...); err != nil {
		lib := r.libPath
		if lib == "" {
			lib = "platform default"
		}
		r.initErr = fmt.Errorf("failed to initialize onnxruntime (library: %s): %w", lib, err)
		return r.initErr
	}
	r.initialized = true
	logger.Log.Debug("onnxruntime environment initialized", "library", r.libPath, "version", ort.GetVersion(), "verbose", r.debug)
	return nil
}

func (r *Runtime) Version() (string, error) {
	if err := r.Init(); err != nil {
		return "", err
	}
	return ort.GetVersion(), nil
}

// AvailableBackends lists the execution providers this runtime build can use.
// CUDA is reported when CUDA provider options can be created.
func (r *Runtime) AvailableBackends() ([]Backend, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}
	backends := []Backend{BackendCPU}
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err == nil {
		_ = cudaOpts.Destroy()
		backends = append(backends, BackendCUDA)
	} else {
		logger.Log.Debug("CUDA execution provider unavailable", "error", err)
	}
	return backends, nil
}

// ModelIO returns the declared inputs and outputs of the model at path.
func (r *Runtime) ModelIO(path string) ([]IOInfo, []IOInfo, error) {
	if err := r.Init(); err != nil {
		return nil, nil, err
	}
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model inputs/outputs: %w", err)
	}
	return convertInfo(ins), convertInfo(outs), nil
}

func convertInfo(infos []ort.InputOutputInfo) []IOInfo {
	out := make([]IOInfo, len(infos))
	for i, info := range infos {
		out[i] = IOInfo{
			Name:     info.Name,
			Shape:    append([]int64(nil), info.Dimensions...),
			DataType: fmt.Sprint(info.DataType),
		}
	}
	return out
}

func ortOptimizationLevel(o OptimizationLevel) ort.GraphOptimizationLevel {
	switch o {
	case OptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll
	case OptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic
	case OptimizationExtended:
		return ort.GraphOptimizationLevelEnableExtended
	default:
		return ort.GraphOptimizationLevelEnableAll
	}
}

// NewSession creates a session over the first declared model input and all outputs.
func (r *Runtime) NewSession(path string, opts SessionOptions) (Session, error) {
	ins, outs, err := r.ModelIO(path)
	if err != nil {
		return nil, err
	}
	if len(ins) == 0 {
		return nil, fmt.Errorf("model %s declares no inputs", path)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("model %s declares no outputs", path)
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer so.Destroy()

	if err := so.SetGraphOptimizationLevel(ortOptimizationLevel(opts.OptimizationLevel)); err != nil {
		return nil, fmt.Errorf("failed to set optimization level: %w", err)
	}
	if opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	if opts.Backend == BackendCUDA {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := cudaOpts.Update(map[string]string{"device_id": strconv.Itoa(opts.DeviceID)}); err != nil {
			return nil, fmt.Errorf("failed to configure CUDA provider: %w", err)
		}
		if err := so.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, fmt.Errorf("failed to append CUDA provider: %w", err)
		}
	}

	outputNames := make([]string, len(outs))
	for i, o := range outs {
		outputNames[i] = o.Name
	}

	sess, err := ort.NewDynamicAdvancedSession(path, []string{ins[0].Name}, outputNames, so)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ortSession{
		sess:    sess,
		inputs:  ins,
		outputs: outs,
		backend: opts.Backend,
	}, nil
}

// Close tears down the environment if this runtime initialized it.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil
	}
	r.initialized = false
	return ort.DestroyEnvironment()
}
