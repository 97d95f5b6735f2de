package sync

import (
	gosync "sync"

	"github.com/njoerd114/bdcollect/internal/model"
)

// keyedQueue serialises work per identity in arrival order. Each caller
// waits for the previous holder of the same identity to release; different
// identities never wait on each other.
type keyedQueue struct {
	mu    gosync.Mutex
	tails map[model.Identity]chan struct{}
	depth map[model.Identity]int
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{
		tails: make(map[model.Identity]chan struct{}),
		depth: make(map[model.Identity]int),
	}
}

// acquire blocks until every earlier caller for id has released, then
// returns the release function. release must be called exactly once.
func (q *keyedQueue) acquire(id model.Identity) (release func()) {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[id]
	q.tails[id] = done
	q.depth[id]++
	q.mu.Unlock()

	if prev != nil {
		<-prev
	}

	return func() {
		q.mu.Lock()
		q.depth[id]--
		if q.depth[id] == 0 {
			delete(q.depth, id)
		}
		if q.tails[id] == done {
			delete(q.tails, id)
		}
		q.mu.Unlock()
		close(done)
	}
}

// pending returns how many callers hold or wait for id.
func (q *keyedQueue) pending(id model.Identity) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth[id]
}
