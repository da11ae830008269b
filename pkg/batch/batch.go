package batch

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTarget is returned by Plan when the target count is below 1.
	ErrInvalidTarget = errors.New("batch: target count must be >= 1")

	// ErrUnsplittable is returned by Split for batches with fewer than 2 records.
	ErrUnsplittable = errors.New("batch: cannot split a batch with fewer than 2 records")
)

// Record is an opaque JSON-serializable value owned by the producer.
type Record = any

// ID identifies a batch by the half-open range [Start, End) it covers in the
// sequence produced by Source.
type ID struct {
	Source string `json:"source"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	// Parent is the ID of the batch this one was split from, if any.
	Parent string `json:"parent,omitempty"`
}

// String renders the ID as "<source>:<start>-<end>".
func (id ID) String() string {
	return id.Source + ":" + strconv.Itoa(id.Start) + "-" + strconv.Itoa(id.End)
}

// Len returns the number of positions the ID covers.
func (id ID) Len() int { return id.End - id.Start }

// ParseID parses the String form of an ID. Parent is not part of the string
// form and is left empty.
func ParseID(s string) (ID, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return ID{}, fmt.Errorf("batch: malformed id %q", s)
	}
	start, end, ok := strings.Cut(s[i+1:], "-")
	if !ok {
		return ID{}, fmt.Errorf("batch: malformed range in id %q", s)
	}
	a, err := strconv.Atoi(start)
	if err != nil {
		return ID{}, fmt.Errorf("batch: malformed start in id %q: %w", s, err)
	}
	b, err := strconv.Atoi(end)
	if err != nil {
		return ID{}, fmt.Errorf("batch: malformed end in id %q: %w", s, err)
	}
	if b < a {
		return ID{}, fmt.Errorf("batch: inverted range in id %q", s)
	}
	return ID{Source: s[:i], Start: a, End: b}, nil
}

// Batch is a contiguous, ordered sub-sequence of records.
type Batch struct {
	ID      ID
	Records []Record
	// Target is the size class the batch was planned with. It halves on split.
	Target int
}

// Size returns the number of records in the batch.
func (b Batch) Size() int { return len(b.Records) }

// Empty reports whether the batch has no records.
func (b Batch) Empty() bool { return len(b.Records) == 0 }

// Sort orders batches by ID (source, then start position).
func Sort(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i].ID, batches[j].ID
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Start < b.Start
	})
}

// Concat returns the records of batches in ID order.
func Concat(batches []Batch) []Record {
	sorted := make([]Batch, len(batches))
	copy(sorted, batches)
	Sort(sorted)

	n := 0
	for _, b := range sorted {
		n += len(b.Records)
	}
	out := make([]Record, 0, n)
	for _, b := range sorted {
		out = append(out, b.Records...)
	}
	return out
}
