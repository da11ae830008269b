package batch

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPlan(t *testing.T) {
	batches, err := Plan("orders", seq(2500), 1000)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, ID{Source: "orders", Start: 0, End: 1000}, batches[0].ID)
	assert.Equal(t, ID{Source: "orders", Start: 1000, End: 2000}, batches[1].ID)
	assert.Equal(t, ID{Source: "orders", Start: 2000, End: 2500}, batches[2].ID)
	assert.Equal(t, 500, batches[2].Size())
	for _, b := range batches {
		assert.Equal(t, 1000, b.Target)
	}
}

func TestPlan_Empty(t *testing.T) {
	batches, err := Plan("orders", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestPlan_InvalidTarget(t *testing.T) {
	for _, target := range []int{0, -1} {
		_, err := Plan("orders", seq(3), target)
		assert.True(t, errors.Is(err, ErrInvalidTarget), "target %d: %v", target, err)
	}
}

func TestSplit(t *testing.T) {
	b := Batch{ID: ID{Source: "s", Start: 10, End: 15}, Records: seq(5), Target: 5}

	left, right, err := Split(b)
	require.NoError(t, err)

	assert.Equal(t, ID{Source: "s", Start: 10, End: 12, Parent: "s:10-15"}, left.ID)
	assert.Equal(t, ID{Source: "s", Start: 12, End: 15, Parent: "s:10-15"}, right.ID)
	assert.Equal(t, []Record{0, 1}, left.Records)
	assert.Equal(t, []Record{2, 3, 4}, right.Records)
	assert.Equal(t, 2, left.Target)
}

func TestSplit_SingleRecord(t *testing.T) {
	_, _, err := Split(Batch{ID: ID{Source: "s", Start: 0, End: 1}, Records: seq(1)})
	assert.ErrorIs(t, err, ErrUnsplittable)
}

func TestSplit_ChildAppendDoesNotClobberSibling(t *testing.T) {
	b := Batch{ID: ID{Source: "s", End: 4}, Records: seq(4)}
	left, right, err := Split(b)
	require.NoError(t, err)

	left.Records = append(left.Records, "x")
	assert.Equal(t, []Record{2, 3}, right.Records)
}

func TestIDStringRoundTrip(t *testing.T) {
	id := ID{Source: "tenant:orders", Start: 1000, End: 1500}
	assert.Equal(t, "tenant:orders:1000-1500", id.String())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, bad := range []string{"nocolon", "s:10", "s:a-2", "s:1-b", "s:5-1"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFit_SplitsUntilLeavesFit(t *testing.T) {
	// each record costs 10 bytes
	size := func(b Batch) (int, error) { return 10 * b.Size(), nil }
	b := Batch{ID: ID{Source: "s", End: 100}, Records: seq(100), Target: 100}

	res := Fit(b, size, 250)

	assert.Empty(t, res.Oversized)
	assert.Empty(t, res.Unencodable)
	assert.Greater(t, res.Splits, 0)
	for _, leaf := range res.Leaves {
		n, _ := size(leaf)
		assert.LessOrEqual(t, n, 250, leaf.ID.String())
	}
	assert.Equal(t, seq(100), Concat(res.Leaves))
	for i := 1; i < len(res.Leaves); i++ {
		assert.Equal(t, res.Leaves[i-1].ID.End, res.Leaves[i].ID.Start, "leaves must be in order")
	}
}

func TestFit_SingleOversizedRecord(t *testing.T) {
	size := func(b Batch) (int, error) {
		n := 0
		for _, r := range b.Records {
			if r.(int) == 3 {
				n += 1000
			} else {
				n += 1
			}
		}
		return n, nil
	}
	b := Batch{ID: ID{Source: "s", End: 8}, Records: seq(8)}

	res := Fit(b, size, 100)

	require.Len(t, res.Oversized, 1)
	assert.Equal(t, ID{Source: "s", Start: 3, End: 4, Parent: "s:2-4"}, res.Oversized[0].ID)
	all := append(append([]Batch{}, res.Leaves...), res.Oversized...)
	assert.Equal(t, seq(8), Concat(all))
	// one bad record in 8 needs exactly log2(8) splits
	assert.Equal(t, 3, res.Splits)
}

func TestFit_IsolatesUnencodableRecord(t *testing.T) {
	bad := errors.New("unsupported value")
	size := func(b Batch) (int, error) {
		for _, r := range b.Records {
			if r.(int) == 5 {
				return 0, bad
			}
		}
		return b.Size(), nil
	}
	res := Fit(Batch{ID: ID{Source: "s", End: 6}, Records: seq(6)}, size, 100)

	require.Len(t, res.Unencodable, 1)
	assert.Equal(t, 5, res.Unencodable[0].ID.Start)
	assert.ErrorIs(t, res.Errors[0], bad)
	assert.Len(t, Concat(res.Leaves), 5)
}

func TestPlanAndFit_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(500)
		target := 1 + rng.Intn(64)
		weights := make([]int, n)
		records := make([]Record, n)
		for i := range records {
			weights[i] = 1 + rng.Intn(40)
			records[i] = i
		}
		size := func(b Batch) (int, error) {
			total := 0
			for _, r := range b.Records {
				total += weights[r.(int)]
			}
			return total, nil
		}

		planned, err := Plan("p", records, target)
		require.NoError(t, err)

		var terminal []Batch
		for _, b := range planned {
			res := Fit(b, size, 60)
			terminal = append(terminal, res.Leaves...)
			terminal = append(terminal, res.Oversized...)
		}
		assert.Equal(t, records, Concat(terminal), fmt.Sprintf("trial %d n=%d target=%d", trial, n, target))
	}
}
