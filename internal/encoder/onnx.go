package encoder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/domain"
	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv guards the process-wide ONNX Runtime initialisation.
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initialises ONNX Runtime. Only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXEncoder runs a vision backbone exported to ONNX and pools its output
// into one embedding per image.
type ONNXEncoder struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	size       int
	mean       []float64
	std        []float64
	modelID    string

	// DynamicAdvancedSession.Run is not documented as reentrant
	mu sync.Mutex
}

// NewONNXEncoder loads the model and creates an inference session.
// The model must take a single [N,3,S,S] float input.
func NewONNXEncoder(cfg *config.EncoderConfig) (*ONNXEncoder, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(cfg.ModelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected one image input, got %d", len(inputs))
	}
	if dims := inputs[0].Dimensions; len(dims) != 4 || dims[1] != 3 {
		return nil, fmt.Errorf("onnx: expected [N,3,H,W] input, got %v", dims)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			return nil, fmt.Errorf("onnx: failed to set thread count: %w", err)
		}
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("onnx: failed to set thread count: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNXEncoder{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		size:       cfg.InputSize,
		mean:       append([]float64(nil), cfg.Mean...),
		std:        append([]float64(nil), cfg.Std...),
		modelID:    filepath.Base(cfg.ModelPath),
	}, nil
}

// EncodeImage implements ImageEncoder.
func (e *ONNXEncoder) EncodeImage(ctx context.Context, path string) (domain.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tensor, err := preprocess(path, e.size, e.mean, e.std)
	if err != nil {
		return nil, err
	}

	out, shape, err := e.infer(tensor)
	if err != nil {
		return nil, err
	}
	pooled, err := pool(out, shape)
	if err != nil {
		return nil, err
	}
	return normalize(pooled), nil
}

func (e *ONNXEncoder) infer(pixels []float32) ([]float32, ort.Shape, error) {
	in, err := ort.NewTensor(ort.NewShape(1, 3, int64(e.size), int64(e.size)), pixels)
	if err != nil {
		return nil, nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	// nil outputs are allocated by the runtime with the model's actual shape
	outputs := []ort.Value{nil}

	e.mu.Lock()
	err = e.session.Run([]ort.Value{in}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("onnx: inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("onnx: output %s is not a float32 tensor", e.outputName)
	}
	src := t.GetData()
	data := make([]float32, len(src))
	copy(data, src)
	return data, t.GetShape(), nil
}

// pool reduces a batch-of-one backbone output to a single feature vector:
// [1,D] is taken as is, [1,T,D] is mean-pooled over tokens and [1,C,H,W]
// gets global average pooling over the spatial grid.
func pool(data []float32, shape ort.Shape) ([]float32, error) {
	if len(shape) == 0 || shape[0] != 1 {
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
	}

	switch len(shape) {
	case 2:
		return data, nil
	case 3:
		tokens, dim := int(shape[1]), int(shape[2])
		out := make([]float32, dim)
		for t := 0; t < tokens; t++ {
			row := data[t*dim : (t+1)*dim]
			for d, v := range row {
				out[d] += v
			}
		}
		for d := range out {
			out[d] /= float32(tokens)
		}
		return out, nil
	case 4:
		channels, cells := int(shape[1]), int(shape[2]*shape[3])
		out := make([]float32, channels)
		for c := 0; c < channels; c++ {
			var sum float32
			for _, v := range data[c*cells : (c+1)*cells] {
				sum += v
			}
			out[c] = sum / float32(cells)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("onnx: unsupported output rank %d", len(shape))
	}
}

// Fingerprint implements ImageEncoder.
func (e *ONNXEncoder) Fingerprint() string {
	return "onnx/" + e.modelID + "/" + pipelineID(e.size, e.mean, e.std)
}

// Close releases the ONNX session.
func (e *ONNXEncoder) Close() error {
	return e.session.Destroy()
}
