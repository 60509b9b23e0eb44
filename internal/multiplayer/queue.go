package multiplayer

// Queue is the FIFO matchmaking waiting list.
// A player id appears at most once. Not safe for concurrent use;
// the Coordinator pops pairs inside its critical section.
type Queue struct {
	order  []PlayerID
	queued map[PlayerID]struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{queued: make(map[PlayerID]struct{})}
}

// Push appends id unless it is already waiting. Reports whether it was added.
func (q *Queue) Push(id PlayerID) bool {
	if _, ok := q.queued[id]; ok {
		return false
	}
	q.queued[id] = struct{}{}
	q.order = append(q.order, id)
	return true
}

// pushFront puts id back at the head of the queue.
func (q *Queue) pushFront(id PlayerID) {
	if _, ok := q.queued[id]; ok {
		return
	}
	q.queued[id] = struct{}{}
	q.order = append([]PlayerID{id}, q.order...)
}

// Pop removes and returns the earliest waiting id.
func (q *Queue) Pop() (PlayerID, bool) {
	if len(q.order) == 0 {
		return 0, false
	}
	id := q.order[0]
	q.order[0] = 0
	q.order = q.order[1:]
	delete(q.queued, id)
	return id, true
}

// Remove drops id if present. Removing an absent id is a no-op.
func (q *Queue) Remove(id PlayerID) bool {
	if _, ok := q.queued[id]; !ok {
		return false
	}
	delete(q.queued, id)
	for i, x := range q.order {
		if x == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether id is waiting.
func (q *Queue) Contains(id PlayerID) bool {
	_, ok := q.queued[id]
	return ok
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	return len(q.order)
}

// Snapshot returns the waiting ids in FIFO order.
func (q *Queue) Snapshot() []PlayerID {
	out := make([]PlayerID, len(q.order))
	copy(out, q.order)
	return out
}
