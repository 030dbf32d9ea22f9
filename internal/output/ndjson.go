package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"product-image-miner/internal/product"
)

// NDJSONFile stores one compact result per line. Appending never touches
// earlier lines; a torn final line left by a crash is cut before appending.
type NDJSONFile struct {
	path string
	sync bool
}

func NewNDJSONFile(path string, sync bool) *NDJSONFile {
	return &NDJSONFile{path: path, sync: sync}
}

func (n *NDJSONFile) Describe() string { return "ndjson:" + n.path }

func (n *NDJSONFile) Create(ctx context.Context) (Writer, error) {
	if err := ensureDir(n.path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(n.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrPersistence, n.path, err)
	}
	return &lineWriter{path: n.path, sync: n.sync, f: f}, nil
}

func (n *NDJSONFile) Extend(ctx context.Context) (Writer, error) {
	return &lineWriter{path: n.path, sync: n.sync, lazy: true}, nil
}

type lineWriter struct {
	path string
	sync bool
	lazy bool
	f    *os.File
}

func (w *lineWriter) Append(ctx context.Context, r product.FetchResult) error {
	if w.f == nil {
		if !w.lazy {
			return fmt.Errorf("%w: %s already closed", ErrPersistence, w.path)
		}
		f, err := openLogTail(w.path)
		if err != nil {
			return err
		}
		w.f, w.lazy = f, false
	}

	b, err := r.MarshalLine()
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, r.ID, err)
	}
	if _, err := w.f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, w.path, err)
	}
	if w.sync {
		if err := w.f.Sync(); err != nil {
			return fmt.Errorf("%w: sync %s: %v", ErrPersistence, w.path, err)
		}
	}
	return nil
}

func (w *lineWriter) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	if err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrPersistence, w.path, err)
	}
	return nil
}

func openLogTail(path string) (*os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistence, path, err)
	}
	fail := func(err error) (*os.File, error) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrPersistence, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return fail(err)
	}
	end, err := lastLineEnd(f, info.Size())
	if err != nil {
		return fail(err)
	}
	if end != info.Size() {
		if err := f.Truncate(end); err != nil {
			return fail(err)
		}
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		return fail(err)
	}
	return f, nil
}

// lastLineEnd returns the offset just past the last '\n' in [0, size), or 0.
func lastLineEnd(r io.ReaderAt, size int64) (int64, error) {
	buf := make([]byte, tailChunk)
	end := size
	for end > 0 {
		start := end - tailChunk
		if start < 0 {
			start = 0
		}
		chunk := buf[:end-start]
		if _, err := r.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}
