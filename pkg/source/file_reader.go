package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/bft-labs/bulkship/pkg/batch"
)

const readBufferSize = 64 * 1024

// FileReader implements Reader over a local file.
type FileReader struct {
	path   string
	format Format
	closer []io.Closer

	lines  *bufio.Reader
	lineNo int

	dec     *json.Decoder
	started bool
	done    bool
}

// Open opens path and picks a decoder from its extension.
func Open(path string) (*FileReader, error) {
	format, gz := Detect(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newFileReader(path, f, format, gz)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = append(r.closer, f)
	return r, nil
}

// NewReader reads records in the given format from rd.
func NewReader(rd io.Reader, format Format, gz bool) (*FileReader, error) {
	return newFileReader("", rd, format, gz)
}

func newFileReader(path string, rd io.Reader, format Format, gz bool) (*FileReader, error) {
	r := &FileReader{path: path, format: format}
	if gz {
		zr, err := gzip.NewReader(bufio.NewReaderSize(rd, readBufferSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
		r.closer = append(r.closer, zr)
		rd = zr
	}

	switch format {
	case FormatJSONLines:
		r.lines = bufio.NewReaderSize(rd, readBufferSize)
	case FormatJSONArray:
		r.dec = json.NewDecoder(bufio.NewReaderSize(rd, readBufferSize))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return r, nil
}

// Next returns the next record as json.RawMessage.
func (r *FileReader) Next(ctx context.Context) (batch.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if r.lines != nil {
		return r.nextLine()
	}
	return r.nextElement()
}

func (r *FileReader) nextLine() (batch.Record, error) {
	for {
		line, err := r.lines.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return nil, err
		}
		r.lineNo++

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("%w: %s line %d", ErrMalformed, r.path, r.lineNo)
		}
		return json.RawMessage(line), nil
	}
}

func (r *FileReader) nextElement() (batch.Record, error) {
	if r.done {
		return nil, io.EOF
	}
	if !r.started {
		tok, err := r.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, r.path, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, fmt.Errorf("%w: %s: expected a JSON array", ErrMalformed, r.path)
		}
		r.started = true
	}

	if !r.dec.More() {
		if _, err := r.dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, r.path, err)
		}
		r.done = true
		return nil, io.EOF
	}

	var raw json.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, r.path, err)
	}
	return raw, nil
}

// Close releases all resources.
func (r *FileReader) Close() error {
	var errs []error
	for i := len(r.closer) - 1; i >= 0; i-- {
		if err := r.closer[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closer = nil
	return errors.Join(errs...)
}
