// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import "sync"

// asyncOpQueue defers work from pipeline goroutines onto the control loop.
// Every posted operation stays in the pending list until it runs, so teardown
// can cancel whatever has not run yet.
type asyncOpQueue struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]struct{}
	closing bool
	post    func(func()) bool
}

func newAsyncOpQueue(post func(func()) bool) *asyncOpQueue {
	return &asyncOpQueue{
		pending: make(map[uint64]struct{}),
		post:    post,
	}
}

// Schedule queues fn. It reports false after CancelAll.
func (q *asyncOpQueue) Schedule(fn func()) bool {
	q.mu.Lock()
	if q.closing {
		q.mu.Unlock()
		return false
	}
	q.nextID++
	id := q.nextID
	q.pending[id] = struct{}{}
	q.mu.Unlock()

	ok := q.post(func() {
		if !q.take(id) {
			return
		}
		fn()
	})
	if !ok {
		q.take(id)
	}
	return ok
}

func (q *asyncOpQueue) take(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return false
	}
	delete(q.pending, id)
	return true
}

// Pending returns the number of operations that have not run yet.
func (q *asyncOpQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// CancelAll drops every pending operation and rejects new ones.
func (q *asyncOpQueue) CancelAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closing = true
	n := len(q.pending)
	clear(q.pending)
	return n
}
