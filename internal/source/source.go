package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"product-image-miner/internal/product"
)

// ErrMalformedSource marks an input file that cannot be parsed. Such files are
// skipped; they never abort a pass.
var ErrMalformedSource = errors.New("malformed source file")

// Source yields product records in a stable order.
type Source interface {
	Each(ctx context.Context, fn func(product.Record) error) error
}

// Slice is an in-memory Source.
type Slice []product.Record

func (s Slice) Each(ctx context.Context, fn func(product.Record) error) error {
	for _, rec := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Dir reads every *.json file of a directory, sorted by name. Each file holds
// one record object or an array of records.
type Dir struct {
	path   string
	logger *zap.SugaredLogger
}

func NewDir(path string, logger *zap.SugaredLogger) *Dir {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dir{path: path, logger: logger}
}

func (d *Dir) Path() string { return d.path }

func (d *Dir) Files() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("read input dir %q: %w", d.path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(d.path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (d *Dir) Each(ctx context.Context, fn func(product.Record) error) error {
	files, err := d.Files()
	if err != nil {
		return err
	}
	d.logger.Infow("source_files_found", "dir", d.path, "files", len(files))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := ReadFile(path)
		if err != nil {
			d.logger.Warnw("source_file_skipped", "file", path, "err", err)
			continue
		}

		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}

		d.logger.Infow("source_file_processed",
			"file", filepath.Base(path),
			"done", i+1,
			"total", len(files),
			"records", len(records),
		)
	}
	return nil
}

// ReadFile loads the records of one input file. Unreadable or unparsable files
// yield an error wrapping ErrMalformedSource.
func ReadFile(path string) ([]product.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSource, filepath.Base(path), err)
	}
	recs, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return recs, nil
}

// Decode parses a single record object or an array of records. Array elements
// that are not objects become records without an id.
func Decode(b []byte) ([]product.Record, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedSource)
	}

	switch b[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
		out := make([]product.Record, 0, len(items))
		for _, item := range items {
			var rec product.Record
			if t := bytes.TrimSpace(item); len(t) > 0 && t[0] == '{' {
				if err := json.Unmarshal(t, &rec); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
				}
			}
			out = append(out, rec)
		}
		return out, nil
	case '{':
		var rec product.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
		return []product.Record{rec}, nil
	default:
		return nil, fmt.Errorf("%w: expected object or array", ErrMalformedSource)
	}
}

// Index resolves ids back to their records by scanning src. The first record
// seen for an id wins; ids that never appear are absent from the map.
func Index(ctx context.Context, src Source, ids []product.ID) (map[product.ID]product.Record, error) {
	wanted := make(map[product.ID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	out := make(map[product.ID]product.Record, len(ids))
	if len(wanted) == 0 {
		return out, nil
	}

	err := src.Each(ctx, func(rec product.Record) error {
		if !wanted[rec.ID] {
			return nil
		}
		if _, ok := out[rec.ID]; !ok {
			out[rec.ID] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
