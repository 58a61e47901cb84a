package imaging

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/Brownie44l1/xray-api/internal/model"
)

// Source makes an encoded image available for the duration of fn.
type Source interface {
	Fetch(ctx context.Context, fn func(io.Reader) error) error
}

// Bytes is an in-memory image.
type Bytes []byte

func (b Bytes) Fetch(_ context.Context, fn func(io.Reader) error) error {
	if len(b) == 0 {
		return model.Errorf(model.ErrDecode, "empty image")
	}
	return fn(bytes.NewReader(b))
}

// URL downloads an image into a temporary file that is removed once fn
// returns.
type URL struct {
	URL     string
	Client  *http.Client
	TempDir string
	// MaxBytes limits the download; zero means DefaultMaxDownload.
	MaxBytes int64
}

const DefaultMaxDownload = 10 << 20

func (u URL) Fetch(ctx context.Context, fn func(io.Reader) error) error {
	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return &model.Error{Kind: model.ErrDecode, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &model.Error{Kind: model.ErrDecode, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return model.Errorf(model.ErrDecode, "fetch %s: status %d", u.URL, resp.StatusCode)
	}

	f, err := os.CreateTemp(u.TempDir, "xray-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		if err := os.Remove(f.Name()); err != nil {
			slog.Warn("removing temp image", "path", f.Name(), "error", err)
		}
	}()

	limit := u.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxDownload
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return &model.Error{Kind: model.ErrDecode, Err: fmt.Errorf("download %s: %w", u.URL, err)}
	}
	if n > limit {
		return model.Errorf(model.ErrDecode, "download %s: image exceeds %d bytes", u.URL, limit)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind temp file: %w", err)
	}
	return fn(bufio.NewReader(f))
}
