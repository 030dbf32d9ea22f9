package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"product-image-miner/internal/product"
)

const (
	openFrame  = '['
	closeFrame = ']'
	tailChunk  = 4096
)

// ErrCorruptTail is returned when the array file does not end in a frame or a
// complete entry, so there is no safe append point.
var ErrCorruptTail = errors.New("output file has no recognizable tail")

// ArrayFile stores results as a pretty-printed JSON array:
//
//	[
//	{ ...entry... },
//	{ ...entry... }
//	]
//
// Extend only inspects the bytes before the closing frame; earlier entries
// are never parsed.
type ArrayFile struct {
	path string
	sync bool
}

func NewArrayFile(path string, sync bool) *ArrayFile {
	return &ArrayFile{path: path, sync: sync}
}

func (a *ArrayFile) Describe() string { return "array:" + a.path }

func (a *ArrayFile) Create(ctx context.Context) (Writer, error) {
	if err := ensureDir(a.path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrPersistence, a.path, err)
	}
	w := &arrayWriter{path: a.path, sync: a.sync, f: f}
	if err := w.write([]byte{openFrame, '\n'}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Extend defers opening the file to the first Append, so a pass without new
// results leaves the file byte-for-byte untouched.
func (a *ArrayFile) Extend(ctx context.Context) (Writer, error) {
	return &arrayWriter{path: a.path, sync: a.sync, lazy: true}, nil
}

type arrayWriter struct {
	path       string
	sync       bool
	lazy       bool
	f          *os.File
	hasEntries bool
}

func (w *arrayWriter) Append(ctx context.Context, r product.FetchResult) error {
	if w.f == nil {
		if !w.lazy {
			return fmt.Errorf("%w: %s already closed", ErrPersistence, w.path)
		}
		f, hasEntries, err := openArrayTail(w.path)
		if err != nil {
			return err
		}
		w.f, w.hasEntries, w.lazy = f, hasEntries, false
	}

	b, err := r.MarshalPretty()
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, r.ID, err)
	}
	if w.hasEntries {
		b = append([]byte(",\n"), b...)
	}
	if err := w.write(b); err != nil {
		return err
	}
	w.hasEntries = true
	return nil
}

func (w *arrayWriter) Close() error {
	if w.f == nil {
		return nil
	}
	werr := w.write([]byte{'\n', closeFrame})
	cerr := w.f.Close()
	w.f = nil
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return fmt.Errorf("%w: close %s: %v", ErrPersistence, w.path, cerr)
	}
	return nil
}

func (w *arrayWriter) write(b []byte) error {
	if _, err := w.f.Write(b); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, w.path, err)
	}
	if w.sync {
		if err := w.f.Sync(); err != nil {
			return fmt.Errorf("%w: sync %s: %v", ErrPersistence, w.path, err)
		}
	}
	return nil
}

// openArrayTail opens path positioned at the append point: right after the
// last entry (or after the opening frame when the array is empty). The
// closing frame, when present, is cut off. A file that lost its closing
// frame in a crash is accepted as long as it ends with a complete entry.
func openArrayTail(path string) (*os.File, bool, error) {
	if err := ensureDir(path); err != nil {
		return nil, false, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("%w: open %s: %v", ErrPersistence, path, err)
	}
	fail := func(err error) (*os.File, bool, error) {
		_ = f.Close()
		return nil, false, fmt.Errorf("%w: %s: %v", ErrPersistence, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return fail(err)
	}

	pos, c, err := lastSignificant(f, info.Size())
	if err != nil {
		return fail(err)
	}
	if c == closeFrame {
		pos, c, err = lastSignificant(f, pos)
		if err != nil {
			return fail(err)
		}
	}

	var (
		cut        int64
		hasEntries bool
		prefix     []byte
	)
	switch {
	case pos < 0:
		// Empty or whitespace only: start a fresh frame.
		cut, prefix = 0, []byte{openFrame, '\n'}
	case c == openFrame:
		cut, prefix = pos+1, []byte{'\n'}
	case c == '}':
		cut, hasEntries = pos+1, true
	default:
		return fail(fmt.Errorf("%w (last byte %q at offset %d)", ErrCorruptTail, c, pos))
	}

	if err := f.Truncate(cut); err != nil {
		return fail(err)
	}
	if _, err := f.Seek(cut, io.SeekStart); err != nil {
		return fail(err)
	}
	if len(prefix) > 0 {
		if _, err := f.Write(prefix); err != nil {
			return fail(err)
		}
	}
	return f, hasEntries, nil
}

// lastSignificant scans backwards from end for the last non-whitespace byte.
// It returns -1 when [0, end) holds only whitespace.
func lastSignificant(r io.ReaderAt, end int64) (int64, byte, error) {
	buf := make([]byte, tailChunk)
	for end > 0 {
		start := end - tailChunk
		if start < 0 {
			start = 0
		}
		chunk := buf[:end-start]
		if _, err := r.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return -1, 0, err
		}
		for i := len(chunk) - 1; i >= 0; i-- {
			switch chunk[i] {
			case ' ', '\n', '\r', '\t':
				continue
			default:
				return start + int64(i), chunk[i], nil
			}
		}
		end = start
	}
	return -1, 0, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrPersistence, dir, err)
	}
	return nil
}
