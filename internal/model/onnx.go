package model

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime initializes the process-wide onnxruntime environment. libPath
// may be empty to use the library's default search path.
func InitRuntime(libPath string) error {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

// ONNXOpener opens artifacts as onnxruntime sessions. InitRuntime must be
// called first.
type ONNXOpener struct {
	IntraOpThreads int
}

func (o ONNXOpener) Open(path string) (Runner, Signature, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, Signature{}, fmt.Errorf("failed to read model signature: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, Signature{}, fmt.Errorf("model has %d inputs and %d outputs, want 1 and 1", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, Signature{}, errors.New("model input and output must be float32")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, Signature{}, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	if o.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(o.IntraOpThreads); err != nil {
			return nil, Signature{}, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{in.Name}, []string{out.Name}, options)
	if err != nil {
		return nil, Signature{}, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	sig := Signature{Input: in.Dimensions, Output: out.Dimensions}
	return &onnxRunner{session: session, output: sig.Output}, sig, nil
}

// onnxRunner allocates tensors per call so one session can serve
// concurrent requests.
type onnxRunner struct {
	session *ort.DynamicAdvancedSession
	output  []int64
}

func (r *onnxRunner) Run(input *Tensor) ([]float64, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape(r.output, input.Shape[0])...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := r.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return widen(outputTensor.GetData()), nil
}

// outputShape replaces dynamic dimensions of the declared output with the
// batch size of the input.
func outputShape(declared []int64, batch int64) []int64 {
	shape := make([]int64, len(declared))
	for i, d := range declared {
		if d < 0 {
			d = batch
		}
		shape[i] = d
	}
	return shape
}

func widen(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

func (r *onnxRunner) Close() error {
	return r.session.Destroy()
}
