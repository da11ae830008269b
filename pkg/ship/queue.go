package ship

import (
	"sync"

	"github.com/bft-labs/bulkship/pkg/batch"
)

// queue is an unbounded FIFO of batches. It tracks how many batches have not
// reached a terminal state and closes itself when that count drops to zero.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []batch.Batch
	pending int
	closed  bool
}

func newQueue(batches []batch.Batch) *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	q.items = append(q.items, batches...)
	q.pending = len(batches)
	q.closed = q.pending == 0
	return q
}

// push adds batches that are not yet terminal.
func (q *queue) push(batches ...batch.Batch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, batches...)
	q.pending += len(batches)
	q.cond.Broadcast()
}

// pop blocks until a batch is available. It returns false once the queue is
// closed.
func (q *queue) pop() (batch.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return batch.Batch{}, false
	}
	b := q.items[0]
	q.items[0] = batch.Batch{}
	q.items = q.items[1:]
	return b, true
}

// done marks one popped batch as handled. Children must be pushed before the
// parent is marked done.
func (q *queue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending <= 0 {
		q.closed = true
		q.cond.Broadcast()
	}
}

// abort closes the queue and drops everything still in it. It returns the
// number of batches dropped.
func (q *queue) abort() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := len(q.items)
	q.items = nil
	q.closed = true
	q.cond.Broadcast()
	return dropped
}
