package source

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/bft-labs/bulkship/pkg/batch"
)

var (
	// ErrUnsupportedFormat is returned by Open for unknown file extensions.
	ErrUnsupportedFormat = errors.New("source: unsupported file format")

	// ErrMalformed is returned when the input is not valid JSON.
	ErrMalformed = errors.New("source: malformed input")
)

// Reader yields records one at a time.
type Reader interface {
	// Next returns the next record, or io.EOF once the input is exhausted.
	Next(ctx context.Context) (batch.Record, error)

	// Close releases all resources held by the reader.
	Close() error
}

// Format is an input encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSONLines
	FormatJSONArray
)

// Detect returns the format of path and whether it is gzip-compressed.
func Detect(path string) (Format, bool) {
	name := strings.ToLower(filepath.Base(path))
	gz := strings.HasSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".gz")

	switch filepath.Ext(name) {
	case ".jsonl", ".ndjson":
		return FormatJSONLines, gz
	case ".json":
		return FormatJSONArray, gz
	default:
		return FormatUnknown, gz
	}
}

// Supported reports whether Open can read path.
func Supported(path string) bool {
	f, _ := Detect(path)
	return f != FormatUnknown
}

// Name derives a source identifier from a file path: the base name with the
// format extensions removed.
func Name(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".gz", ".jsonl", ".ndjson", ".json"} {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			name = name[:len(name)-len(ext)]
		}
	}
	if name == "" {
		return "stdin"
	}
	return name
}

// ReadAll drains r.
func ReadAll(ctx context.Context, r Reader) ([]batch.Record, error) {
	var out []batch.Record
	for {
		rec, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// ReadFile opens path and returns all of its records.
func ReadFile(ctx context.Context, path string) ([]batch.Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ReadAll(ctx, r)
}
