package model

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ModelProto field numbers that mark a file as an ONNX model.
const (
	fieldIRVersion protowire.Number = 1
	fieldGraph     protowire.Number = 7
)

// Runner executes a loaded model on a single input tensor and returns the
// raw output widened to float64.
type Runner interface {
	Run(input *Tensor) ([]float64, error)
	Close() error
}

// Signature is the tensor layout a model declares. A dimension of -1 is dynamic.
type Signature struct {
	Input  []int64
	Output []int64
}

// Opener creates a Runner for an artifact that passed Check.
type Opener interface {
	Open(path string) (Runner, Signature, error)
}

// Handle is a loaded model bound to its label ordering. It is immutable
// and safe for concurrent use.
type Handle struct {
	path   string
	labels []Label
	input  []int64
	runner Runner
}

func (h *Handle) Path() string { return h.path }

func (h *Handle) Labels() []Label { return append([]Label(nil), h.labels...) }

func (h *Handle) InputShape() []int64 { return append([]int64(nil), h.input...) }

// IsValid reports whether path holds a structurally valid model file.
func IsValid(path string) bool {
	return Check(path) == nil
}

// Check verifies that path is a regular file whose top-level protobuf
// message declares an IR version and a graph.
func Check(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Kind: ErrArtifactMissing, Err: fmt.Errorf("%s: %w", path, err)}
	}
	if err != nil {
		return &Error{Kind: ErrArtifactInvalid, Err: err}
	}
	if !info.Mode().IsRegular() {
		return Errorf(ErrArtifactMissing, "%s: not a regular file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return &Error{Kind: ErrArtifactInvalid, Err: err}
	}
	defer f.Close()
	if err := scanModelProto(bufio.NewReader(f)); err != nil {
		return Errorf(ErrArtifactInvalid, "%s: %w", path, err)
	}
	return nil
}

// scanModelProto walks the top-level fields of a ModelProto without holding
// the message in memory; length-delimited fields are skipped.
func scanModelProto(r *bufio.Reader) error {
	var haveIR, haveGraph, seen bool
	for {
		tag, err := binary.ReadUvarint(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed tag: %w", err)
		}
		seen = true

		num, typ := protowire.DecodeTag(tag)
		if !num.IsValid() {
			return fmt.Errorf("invalid field number %d", num)
		}
		switch typ {
		case protowire.VarintType:
			if _, err := binary.ReadUvarint(r); err != nil {
				return fmt.Errorf("malformed field %d: %w", num, noEOF(err))
			}
			haveIR = haveIR || num == fieldIRVersion
		case protowire.Fixed32Type:
			err = skip(r, 4)
		case protowire.Fixed64Type:
			err = skip(r, 8)
		case protowire.BytesType:
			var n uint64
			if n, err = binary.ReadUvarint(r); err == nil {
				if n > math.MaxInt64 {
					return fmt.Errorf("field %d: length %d out of range", num, n)
				}
				err = skip(r, int64(n))
			}
			haveGraph = haveGraph || num == fieldGraph
		default:
			return fmt.Errorf("unsupported wire type %d for field %d", typ, num)
		}
		if err != nil {
			return fmt.Errorf("malformed field %d: %w", num, noEOF(err))
		}
	}
	if !seen {
		return errors.New("empty file")
	}
	if !haveIR || !haveGraph {
		return errors.New("no model configuration found")
	}
	return nil
}

func skip(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// checkSignature resolves the input shape the handle will accept and
// confirms the output matches the label count.
func checkSignature(sig Signature, labels []Label) ([]int64, error) {
	in := sig.Input
	if len(in) != len(InputShape) {
		return nil, fmt.Errorf("input rank %d, want %d", len(in), len(InputShape))
	}
	if in[0] != -1 && in[0] != 1 {
		return nil, fmt.Errorf("unsupported batch dimension %d", in[0])
	}
	if !shapeEqual(in[1:], InputShape[1:]) {
		return nil, fmt.Errorf("input shape %v, want %v", in, InputShape)
	}

	out := sig.Output
	if len(out) == 0 || out[len(out)-1] != int64(len(labels)) {
		return nil, fmt.Errorf("output shape %v does not match %d labels", out, len(labels))
	}
	for _, d := range out[:len(out)-1] {
		if d != 1 && d != -1 {
			return nil, fmt.Errorf("output shape %v is not a single prediction", out)
		}
	}
	return append([]int64(nil), InputShape...), nil
}
