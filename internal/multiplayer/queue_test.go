package multiplayer

import (
	"math/rand"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []PlayerID{1, 2, 3} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueuePushIsIdempotent(t *testing.T) {
	q := NewQueue()
	if !q.Push(7) {
		t.Fatal("First push should add")
	}
	if q.Push(7) {
		t.Error("Second push should be a no-op")
	}
	if q.Len() != 1 {
		t.Errorf("Expected length 1, got %d", q.Len())
	}
}

func TestQueueRemoveAbsentIsNoop(t *testing.T) {
	q := NewQueue()
	q.Push(1)

	if q.Remove(42) {
		t.Error("Removing an absent id should report false")
	}
	if q.Len() != 1 {
		t.Errorf("Queue changed after no-op remove: %v", q.Snapshot())
	}
	if !q.Remove(1) || q.Contains(1) {
		t.Error("Expected id 1 to be removed")
	}
}

func TestQueueNeverHoldsDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q := NewQueue()

	for i := 0; i < 2000; i++ {
		id := PlayerID(rng.Intn(10))
		switch rng.Intn(3) {
		case 0, 1:
			q.Push(id)
		case 2:
			q.Remove(id)
		}

		seen := make(map[PlayerID]bool)
		for _, x := range q.Snapshot() {
			if seen[x] {
				t.Fatalf("Duplicate id %d in queue at step %d: %v", x, i, q.Snapshot())
			}
			seen[x] = true
		}
		if len(seen) != q.Len() {
			t.Fatalf("Index out of sync with order at step %d", i)
		}
	}
}

func TestQueuePushFront(t *testing.T) {
	q := NewQueue()
	q.Push(2)
	q.pushFront(1)

	if got := q.Snapshot(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected [1 2], got %v", got)
	}
}
