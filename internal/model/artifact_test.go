package model_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/Brownie44l1/xray-api/internal/testutil"
)

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	valid := testutil.WriteModel(t, dir)
	full := testutil.ModelBytes()

	tests := []struct {
		name string
		path string
		want error
	}{
		{"valid", valid, nil},
		{"missing", filepath.Join(dir, "nope.onnx"), model.ErrArtifactMissing},
		{"directory", dir, model.ErrArtifactMissing},
		{"empty", testutil.WriteFile(t, dir, "empty.onnx", nil), model.ErrArtifactInvalid},
		{"text", testutil.WriteFile(t, dir, "notes.onnx", []byte("this is not a model")), model.ErrArtifactInvalid},
		{"truncated", testutil.WriteFile(t, dir, "partial.onnx", full[:len(full)-1]), model.ErrArtifactInvalid},
		{"jpeg", testutil.WriteFile(t, dir, "image.onnx", testutil.JPEG(t, 8, 8)), model.ErrArtifactInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := model.Check(tt.path)
			if tt.want == nil {
				assert.NoError(t, err)
				assert.True(t, model.IsValid(tt.path))
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.False(t, model.IsValid(tt.path))
		})
	}
}

func TestCheck_LargeAndMalformedFields(t *testing.T) {
	dir := t.TempDir()

	large := protowire.AppendTag(nil, 1, protowire.VarintType)
	large = protowire.AppendVarint(large, 9)
	large = protowire.AppendTag(large, 5, protowire.Fixed64Type)
	large = protowire.AppendFixed64(large, 42)
	large = protowire.AppendTag(large, 7, protowire.BytesType)
	large = protowire.AppendBytes(large, make([]byte, 8<<20))
	assert.NoError(t, model.Check(testutil.WriteFile(t, dir, "large.onnx", large)))

	overlong := protowire.AppendTag(nil, 1, protowire.VarintType)
	overlong = protowire.AppendVarint(overlong, 8)
	overlong = protowire.AppendTag(overlong, 7, protowire.BytesType)
	overlong = protowire.AppendVarint(overlong, 1<<20)
	overlong = append(overlong, 0x0a, 0x00)
	err := model.Check(testutil.WriteFile(t, dir, "overlong.onnx", overlong))
	assert.True(t, errors.Is(err, model.ErrArtifactInvalid), "got %v", err)

	noGraph := protowire.AppendTag(nil, 1, protowire.VarintType)
	noGraph = protowire.AppendVarint(noGraph, 8)
	err = model.Check(testutil.WriteFile(t, dir, "nograph.onnx", noGraph))
	assert.True(t, errors.Is(err, model.ErrArtifactInvalid), "got %v", err)

	group := protowire.AppendTag(nil, 3, protowire.StartGroupType)
	err = model.Check(testutil.WriteFile(t, dir, "group.onnx", group))
	assert.True(t, errors.Is(err, model.ErrArtifactInvalid), "got %v", err)
}

func TestCache_MissingPathAlwaysMissing(t *testing.T) {
	opener := &testutil.MockOpener{Runner: &testutil.MockRunner{}}
	cache := model.NewCache(opener, model.Labels)
	path := filepath.Join(t.TempDir(), "absent.onnx")

	for i := 0; i < 3; i++ {
		_, err := cache.Load(path)
		require.Error(t, err)
		assert.Equal(t, model.ErrArtifactMissing, model.KindOf(err))
	}
	assert.Zero(t, opener.OpenCount())
}

func TestCache_InvalidArtifactNeverOpened(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "model.onnx", []byte("\x89PNG not a model"))
	opener := &testutil.MockOpener{Runner: &testutil.MockRunner{}}
	cache := model.NewCache(opener, model.Labels)

	_, err := cache.Load(path)
	assert.True(t, errors.Is(err, model.ErrArtifactInvalid))
	assert.Zero(t, opener.OpenCount())
}

func TestCache_FailureIsPermanent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	opener := &testutil.MockOpener{Runner: &testutil.MockRunner{}}
	cache := model.NewCache(opener, model.Labels)

	_, err := cache.Load(path)
	require.True(t, errors.Is(err, model.ErrArtifactMissing))

	require.NoError(t, os.WriteFile(path, testutil.ModelBytes(), 0o644))
	_, err = cache.Load(path)
	assert.True(t, errors.Is(err, model.ErrArtifactMissing))
}

func TestCache_SignatureMismatch(t *testing.T) {
	path := testutil.WriteModel(t, t.TempDir())

	tests := []struct {
		name string
		sig  model.Signature
	}{
		{"wrong size", model.Signature{Input: []int64{1, 128, 128, 3}, Output: []int64{1, 5}}},
		{"channels first", model.Signature{Input: []int64{1, 3, 224, 224}, Output: []int64{1, 5}}},
		{"batch of 8", model.Signature{Input: []int64{8, 224, 224, 3}, Output: []int64{8, 5}}},
		{"too few classes", model.Signature{Input: []int64{-1, 224, 224, 3}, Output: []int64{-1, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &testutil.MockRunner{}
			cache := model.NewCache(&testutil.MockOpener{Runner: runner, Signature: tt.sig}, model.Labels)
			_, err := cache.Load(path)
			assert.True(t, errors.Is(err, model.ErrArtifactInvalid), "got %v", err)
			assert.True(t, runner.Closed)
		})
	}
}

func TestCache_OpenerError(t *testing.T) {
	path := testutil.WriteModel(t, t.TempDir())
	cache := model.NewCache(&testutil.MockOpener{Err: errors.New("bad graph")}, model.Labels)

	_, err := cache.Load(path)
	assert.True(t, errors.Is(err, model.ErrArtifactInvalid))
	assert.ErrorContains(t, err, "bad graph")
}

func TestCache_LoadIsIdempotent(t *testing.T) {
	path := testutil.WriteModel(t, t.TempDir())
	opener := &testutil.MockOpener{Runner: &testutil.MockRunner{Output: []float64{0.1, 0.2, 0.3, 0.2, 0.2}}}
	cache := model.NewCache(opener, model.Labels)

	h1, err := cache.Load(path)
	require.NoError(t, err)
	h2, err := cache.Load(filepath.Join(filepath.Dir(path), ".", "model.onnx"))
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, opener.OpenCount())
	assert.Equal(t, model.InputShape, h1.InputShape())
	assert.Equal(t, model.Labels, h1.Labels())

	tensor := zeroTensor()
	v1, err := model.Infer(h1, tensor)
	require.NoError(t, err)
	v2, err := model.Infer(h2, tensor)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestCache_ConcurrentFirstLoadOpensOnce(t *testing.T) {
	path := testutil.WriteModel(t, t.TempDir())
	opener := &testutil.MockOpener{Runner: &testutil.MockRunner{}, Delay: 50 * time.Millisecond}
	cache := model.NewCache(opener, model.Labels)

	const n = 16
	handles := make([]*model.Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cache.Load(path)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, opener.OpenCount())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestCache_Close(t *testing.T) {
	path := testutil.WriteModel(t, t.TempDir())
	runner := &testutil.MockRunner{}
	cache := model.NewCache(&testutil.MockOpener{Runner: runner}, model.Labels)

	_, err := cache.Load(path)
	require.NoError(t, err)
	require.NoError(t, cache.Close())
	assert.True(t, runner.Closed)
}
