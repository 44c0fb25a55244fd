package sampler

import (
	"sync"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
)

// pendingQueue is a bounded FIFO holding samples whose store append
// failed. It is drained oldest-first at the start of each tick so store
// writes catch up without ever skipping a sensor read.
type pendingQueue struct {
	mu   sync.Mutex
	data []*domain.Sample
	cap  int
}

func newPendingQueue(capacity int) *pendingQueue {
	return &pendingQueue{
		data: make([]*domain.Sample, 0, capacity),
		cap:  capacity,
	}
}

func (q *pendingQueue) push(s *domain.Sample) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, s)
	return true
}

// peek returns the oldest parked sample without removing it.
func (q *pendingQueue) peek() *domain.Sample {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	return q.data[0]
}

func (q *pendingQueue) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return
	}
	q.data = append(q.data[:0], q.data[1:]...)
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}
