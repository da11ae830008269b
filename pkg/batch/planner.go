package batch

import "fmt"

// Plan slices records into contiguous batches of target records. The last
// batch may be shorter. An empty input yields no batches.
func Plan(source string, records []Record, target int) ([]Batch, error) {
	if target < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTarget, target)
	}
	out := make([]Batch, 0, (len(records)+target-1)/target)
	for start := 0; start < len(records); start += target {
		end := start + target
		if end > len(records) {
			end = len(records)
		}
		out = append(out, Batch{
			ID:      ID{Source: source, Start: start, End: end},
			Records: records[start:end:end],
			Target:  target,
		})
	}
	return out, nil
}

// Split halves b. The left child receives the first len/2 records.
func Split(b Batch) (Batch, Batch, error) {
	n := len(b.Records)
	if n < 2 {
		return Batch{}, Batch{}, fmt.Errorf("%w: %s", ErrUnsplittable, b.ID)
	}
	mid := n / 2
	target := b.Target / 2
	if target < 1 {
		target = 1
	}
	parent := b.ID.String()
	left := Batch{
		ID:      ID{Source: b.ID.Source, Start: b.ID.Start, End: b.ID.Start + mid, Parent: parent},
		Records: b.Records[:mid:mid],
		Target:  target,
	}
	right := Batch{
		ID:      ID{Source: b.ID.Source, Start: b.ID.Start + mid, End: b.ID.End, Parent: parent},
		Records: b.Records[mid:n:n],
		Target:  target,
	}
	return left, right, nil
}

// SizeFunc reports the encoded size of a batch.
type SizeFunc func(Batch) (int, error)

// FitResult is the outcome of Fit.
type FitResult struct {
	// Leaves fit within the limit, in ID order.
	Leaves []Batch
	// Oversized are single records that exceed the limit on their own.
	Oversized []Batch
	// Unencodable are single records the size function rejected.
	Unencodable []Batch
	// Errors holds the size function error for each Unencodable batch.
	Errors []error
	// Splits counts split operations performed.
	Splits int
}

// Fit splits b until every piece either fits within maxBytes or is a single
// record that cannot be split further. A size function error on a multi-record
// batch is treated like an oversized batch so that the offending record is
// isolated.
func Fit(b Batch, size SizeFunc, maxBytes int) FitResult {
	var res FitResult
	stack := []Batch{b}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.Empty() {
			continue
		}

		n, err := size(cur)
		if err == nil && n <= maxBytes {
			res.Leaves = append(res.Leaves, cur)
			continue
		}
		if cur.Size() == 1 {
			if err != nil {
				res.Unencodable = append(res.Unencodable, cur)
				res.Errors = append(res.Errors, err)
			} else {
				res.Oversized = append(res.Oversized, cur)
			}
			continue
		}

		left, right, _ := Split(cur)
		res.Splits++
		// right first so left is popped first and leaves stay in order
		stack = append(stack, right, left)
	}
	return res
}
