package failure

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/bulkship/pkg/batch"
	"github.com/bft-labs/bulkship/pkg/sender"
)

// ErrPersistence is returned when a failure document cannot be written. Callers
// treat it as fatal: the batch would otherwise be lost.
var ErrPersistence = errors.New("failure: cannot persist batch")

const fileExt = ".json"

// Sink persists failed batches.
type Sink interface {
	Persist(b batch.Batch, reason Reason, attempts []sender.Attempt, cause error) (string, error)
}

// FileSink writes one JSON document per failed batch into a directory.
type FileSink struct {
	dir string
	now func() time.Time
}

// NewFileSink creates dir if needed and checks that it is writable.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: no directory configured", ErrPersistence)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: directory %s is not writable: %v", ErrPersistence, dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return &FileSink{dir: dir, now: time.Now}, nil
}

// Dir returns the directory documents are written to.
func (s *FileSink) Dir() string { return s.dir }

// FileName returns the document name used for id.
func FileName(id batch.ID) string {
	return fmt.Sprintf("%s_%012d-%012d%s", sanitize(id.Source), id.Start, id.End, fileExt)
}

// Persist writes b atomically and returns the document path. Persisting the same
// batch ID again replaces the earlier document.
func (s *FileSink) Persist(b batch.Batch, reason Reason, attempts []sender.Attempt, cause error) (string, error) {
	rec := Record{
		BatchID:   b.ID.String(),
		Source:    b.ID.Source,
		Start:     b.ID.Start,
		End:       b.ID.End,
		Parent:    b.ID.Parent,
		Reason:    reason,
		Records:   make([]json.RawMessage, 0, len(b.Records)),
		Attempts:  attempts,
		WrittenAt: s.now().UTC(),
	}
	if rec.Attempts == nil {
		rec.Attempts = []sender.Attempt{}
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	for _, r := range b.Records {
		rec.Records = append(rec.Records, marshalRecord(r))
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPersistence, b.ID, err)
	}

	path := filepath.Join(s.dir, FileName(b.ID))
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPersistence, b.ID, err)
	}
	return path, nil
}

// List returns the paths of all failure documents, ordered by name.
func (s *FileSink) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads one failure document.
func (s *FileSink) Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failure: parse %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// Remove deletes a failure document. A missing document is not an error.
func (s *FileSink) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeAtomic writes to a temp file in the same directory, then renames it.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// marshalRecord encodes r on its own so one bad record cannot hide the rest.
func marshalRecord(r batch.Record) json.RawMessage {
	raw, err := json.Marshal(r)
	if err == nil {
		return raw
	}
	raw, _ = json.Marshal(fmt.Sprintf("%#v", r))
	return raw
}

func sanitize(source string) string {
	if source == "" {
		return "batch"
	}
	var b strings.Builder
	for _, c := range source {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	if out := strings.TrimLeft(b.String(), "."); out != "" {
		return out
	}
	return "batch"
}
