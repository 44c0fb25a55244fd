package sampler

import (
	"testing"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
)

func sampleAt(ts time.Time) *domain.Sample {
	return &domain.Sample{Reactor: "R0", Timestamp: ts, Values: map[string]float64{"ph": 7}}
}

func TestPendingQueueFIFO(t *testing.T) {
	q := newPendingQueue(10)
	base := time.Now().UTC()

	q.push(sampleAt(base))
	q.push(sampleAt(base.Add(time.Second)))

	if q.len() != 2 {
		t.Fatalf("expected len 2, got %d", q.len())
	}
	first := q.peek()
	if first == nil || !first.Timestamp.Equal(base) {
		t.Fatalf("expected oldest sample first, got %+v", first)
	}
	// peek does not consume.
	if q.len() != 2 {
		t.Fatalf("peek must not consume, len %d", q.len())
	}

	q.pop()
	second := q.peek()
	if second == nil || !second.Timestamp.Equal(base.Add(time.Second)) {
		t.Fatalf("expected second sample after pop, got %+v", second)
	}
}

func TestPendingQueueBounded(t *testing.T) {
	q := newPendingQueue(2)
	base := time.Now().UTC()

	if !q.push(sampleAt(base)) || !q.push(sampleAt(base.Add(time.Second))) {
		t.Fatal("pushes under capacity must succeed")
	}
	if q.push(sampleAt(base.Add(2 * time.Second))) {
		t.Fatal("push over capacity must report overflow")
	}
	if q.len() != 2 {
		t.Fatalf("overflow must not grow the queue, len %d", q.len())
	}
}

func TestPendingQueueEmpty(t *testing.T) {
	q := newPendingQueue(1)
	if q.peek() != nil {
		t.Fatal("peek on empty queue must be nil")
	}
	q.pop() // must not panic
	if q.len() != 0 {
		t.Fatalf("expected empty queue, len %d", q.len())
	}
}
