// Copyright 2026 The Gozo Authors.

package scheduler

import "time"

// entry is one slot in the pending-schedule heap. It doubles as the value
// referenced by the id index, so overwrite and cancel can mark it
// tombstoned in O(1) without touching the heap itself; the heap discovers
// the tombstone lazily the next time it would otherwise pop the entry.
type entry struct {
	id           string // empty for ephemeral schedules
	durable      bool
	fireAt       time.Time
	replySubject string
	payload      []byte
	headers      map[string]string

	seq        uint64 // insertion sequence, breaks (fire_at) ties
	index      int    // current position in the heap slice, kept by heap.Interface
	tombstoned bool
}

// pqueue is a min-heap ordered on (fireAt, seq): schedules fire in fire_at
// order, and ties break by insertion order. Modeled on the classic
// container/heap priority-queue item shape (Value/Priority/Index),
// generalized from a single int64 priority to the (time, sequence) pair
// this ordering needs.
type pqueue []*entry

func (pq pqueue) Len() int { return len(pq) }

func (pq pqueue) Less(i, j int) bool {
	if pq[i].fireAt.Equal(pq[j].fireAt) {
		return pq[i].seq < pq[j].seq
	}
	return pq[i].fireAt.Before(pq[j].fireAt)
}

func (pq pqueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pqueue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}

func (pq *pqueue) Pop() interface{} {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*pq = old[:n-1]
	return e
}
