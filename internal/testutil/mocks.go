// Package testutil provides fakes shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/Brownie44l1/xray-api/internal/history"
	"github.com/Brownie44l1/xray-api/internal/model"
)

// MockRunner returns Output for every call.
type MockRunner struct {
	Output []float64
	Err    error

	mu     sync.Mutex
	Calls  int
	Closed bool
	Last   *model.Tensor
}

func (r *MockRunner) Run(t *model.Tensor) ([]float64, error) {
	r.mu.Lock()
	r.Calls++
	r.Last = t
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]float64(nil), r.Output...), nil
}

func (r *MockRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

// MockOpener hands out Runner. A zero Signature means the standard
// [-1,224,224,3] -> [-1,5] layout.
type MockOpener struct {
	Runner    model.Runner
	Signature model.Signature
	Err       error
	Delay     time.Duration

	mu    sync.Mutex
	Opens int
}

func DefaultSignature() model.Signature {
	return model.Signature{
		Input:  []int64{-1, model.ImageSize, model.ImageSize, model.Channels},
		Output: []int64{-1, int64(len(model.Labels))},
	}
}

func (o *MockOpener) Open(path string) (model.Runner, model.Signature, error) {
	o.mu.Lock()
	o.Opens++
	o.mu.Unlock()
	if o.Delay > 0 {
		time.Sleep(o.Delay)
	}
	if o.Err != nil {
		return nil, model.Signature{}, o.Err
	}
	sig := o.Signature
	if sig.Input == nil {
		sig = DefaultSignature()
	}
	return o.Runner, sig, nil
}

func (o *MockOpener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Opens
}

// ModelBytes is a minimal protobuf ModelProto: an IR version and an empty graph.
func ModelBytes() []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 8)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "keras2onnx")
	b = protowire.AppendTag(b, 7, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0x0a, 0x00})
	return b
}

func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteModel writes ModelBytes to dir and returns its path.
func WriteModel(t testing.TB, dir string) string {
	return WriteFile(t, dir, "model.onnx", ModelBytes())
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 0xff})
		}
	}
	return img
}

func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// MockStore records uploads.
type MockStore struct {
	URL      string
	Failures int
	Err      error

	mu    sync.Mutex
	Calls int
	Names []string
}

func (s *MockStore) Put(_ context.Context, data []byte, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Calls <= s.Failures {
		return "", errors.New("store unavailable")
	}
	if s.Err != nil {
		return "", s.Err
	}
	s.Names = append(s.Names, name)
	return s.URL, nil
}

// FailingHistory fails every Append.
type FailingHistory struct {
	history.MemoryStore
	Err error
}

func (f *FailingHistory) Append(context.Context, string, history.Record) error {
	return f.Err
}
