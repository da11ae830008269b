// Package codec serializes batches to a JSON array and gzip-compresses them.
//
// Output is deterministic: the gzip header carries no name or modification
// time, and encoding/json sorts map keys, so identical batches always encode
// to identical bytes.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/bft-labs/bulkship/pkg/batch"
)

// ErrSerialization marks a record that cannot be encoded as JSON. It is never
// retryable.
var ErrSerialization = errors.New("codec: record is not JSON-serializable")

// Codec encodes batches. It is safe for concurrent use.
type Codec struct {
	level int
}

// New creates a Codec compressing at the given gzip level. Out-of-range levels
// fall back to gzip.DefaultCompression.
func New(level int) *Codec {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &Codec{level: level}
}

// Marshal returns the uncompressed JSON array for b.
func (c *Codec) Marshal(b batch.Batch) ([]byte, error) {
	records := b.Records
	if records == nil {
		records = []batch.Record{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSerialization, b.ID, err)
	}
	return raw, nil
}

// Encode returns the gzip-compressed JSON array for b.
func (c *Codec) Encode(b batch.Batch) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encodeTo(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SizeOf returns len(Encode(b)) without retaining the compressed bytes.
func (c *Codec) SizeOf(b batch.Batch) (int, error) {
	var cw countingWriter
	if err := c.encodeTo(&cw, b); err != nil {
		return 0, err
	}
	return int(cw.n), nil
}

func (c *Codec) encodeTo(w io.Writer, b batch.Batch) error {
	raw, err := c.Marshal(b)
	if err != nil {
		return err
	}
	zw, err := gzip.NewWriterLevel(w, c.level)
	if err != nil {
		return fmt.Errorf("codec: gzip writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("codec: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("codec: compress: %w", err)
	}
	return nil
}

// Decode reverses Encode, returning each record as raw JSON.
func Decode(body []byte) ([]json.RawMessage, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("codec: gzip reader: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("codec: decompress: %w", err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("codec: decode array: %w", err)
	}
	return records, nil
}

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
