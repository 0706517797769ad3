// Copyright 2026 The Gozo Authors.

// Package scheduler is the core of Gozo: a priority queue of pending
// schedules, a single firing goroutine, and the admit/cancel protocol. It
// knows nothing about NATS; it is driven by the Emitter and StoreWriter
// interfaces below so it can be exercised in isolation from the bus.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/rs/zerolog"
)

// Emitter publishes a fired schedule's payload on its reply subject. It is
// implemented by the Bus Gateway; Scheduler is its sole caller, always from
// the timer goroutine.
type Emitter interface {
	Publish(ctx context.Context, id string, replySubject string, payload []byte, headers map[string]string) error
}

// StoreWriter is the subset of the Durable Store that Scheduler needs: the
// write path for durable schedules. Scheduler is the Store's sole writer.
type StoreWriter interface {
	Put(ctx context.Context, id string, fireAt time.Time, replySubject string, payload []byte, headers map[string]string) error
	Delete(ctx context.Context, id string) error
}

// Stats is a point-in-time snapshot of scheduler activity: operator-visible
// counters that cost nothing beyond what Admit/run already compute.
type Stats struct {
	Pending   int
	Fired     uint64
	Cancelled uint64
	Overwrote uint64
	Inserted  uint64
}

// Scheduler is the in-memory heap of pending schedules plus the goroutine
// that fires them. The zero value is not usable; construct with New.
type Scheduler struct {
	clock  timeutil.Clock
	emit   Emitter
	store  StoreWriter
	log    zerolog.Logger
	wakeCh chan struct{}
	doneCh chan struct{}

	// mu guards everything below it. checkInvariants encodes the scheduler's
	// structural invariants directly, so a violation panics at the point of
	// the offending lock/unlock rather than surfacing later as corrupted
	// state.
	mu syncutil.InvariantMutex

	pq      pqueue            // GUARDED_BY(mu)
	byID    map[string]*entry // GUARDED_BY(mu)
	nextSeq uint64            // GUARDED_BY(mu)

	fired     uint64 // GUARDED_BY(mu)
	cancelled uint64 // GUARDED_BY(mu)
	overwrote uint64 // GUARDED_BY(mu)
	inserted  uint64 // GUARDED_BY(mu)
}

// New constructs a Scheduler. clock abstracts time.Now for testability;
// emit and store are the Gateway and Durable Store collaborators.
func New(clock timeutil.Clock, emit Emitter, store StoreWriter, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		emit:   emit,
		store:  store,
		log:    log,
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
		byID:   make(map[string]*entry),
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

func (s *Scheduler) lock()   { s.mu.Lock() }
func (s *Scheduler) unlock() { s.mu.Unlock() }

// checkInvariants asserts at runtime: at most one live (non-tombstoned)
// entry per id, and the heap is a valid min-heap on (fireAt, seq).
func (s *Scheduler) checkInvariants() {
	seen := make(map[string]bool, len(s.byID))
	for id, e := range s.byID {
		if e.tombstoned {
			continue
		}
		if id != e.id {
			panic(fmt.Sprintf("byID key %q does not match entry id %q", id, e.id))
		}
		if seen[id] {
			panic(fmt.Sprintf("duplicate live schedule id %q", id))
		}
		seen[id] = true
	}
	for i := 1; i < len(s.pq); i++ {
		if s.pq.Less(i, (i-1)/2) {
			panic(fmt.Sprintf("heap order violated at index %d", i))
		}
	}
}

// wake raises the wakeup signal, non-blocking. Admissions call this only
// when they may have decreased the heap's minimum, Nudge calls it
// unconditionally, and cancellation never does.
func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Nudge forces Run to re-evaluate the pending queue against the clock's
// current reading. Admit already nudges on any insertion that lowers the
// heap's minimum; this is for callers that move the clock itself instead
// of the heap, such as a test driving a timeutil.SimulatedClock, which has
// no way to signal the timer goroutine on its own.
func (s *Scheduler) Nudge() {
	s.wake()
}

// Admit is the single entry point for both Schedule and Cancellation
// requests. It may block briefly on a Durable Store Put or Delete, but never
// on the firing goroutine.
func (s *Scheduler) Admit(ctx context.Context, req Request) error {
	switch r := req.(type) {
	case Schedule:
		return s.admitSchedule(ctx, r)
	case Cancellation:
		return s.admitCancellation(ctx, r)
	default:
		return fmt.Errorf("scheduler: unknown request type %T", req)
	}
}

func (s *Scheduler) admitSchedule(ctx context.Context, r Schedule) error {
	durable := r.ID != ""

	// Store.Put runs without the heap lock held: it may block on network
	// I/O and must not stall the timer goroutine's ability to pop and mark
	// tombstones.
	if durable {
		if err := s.store.Put(ctx, r.ID, r.FireAt, r.ReplySubject, r.Payload, r.Headers); err != nil {
			return fmt.Errorf("%w: put %q: %v", ErrStore, r.ID, err)
		}
	}

	s.lock()
	var oldMin time.Time
	haveOldMin := len(s.pq) > 0
	if haveOldMin {
		oldMin = s.pq[0].fireAt
	}

	overwrite := false
	if durable {
		if old, ok := s.byID[r.ID]; ok && !old.tombstoned {
			old.tombstoned = true
			overwrite = true
		}
	}

	e := &entry{
		id:           r.ID,
		durable:      durable,
		fireAt:       r.FireAt,
		replySubject: r.ReplySubject,
		payload:      r.Payload,
		headers:      r.Headers,
		seq:          s.nextSeq,
	}
	s.nextSeq++
	heap.Push(&s.pq, e)
	if durable {
		s.byID[r.ID] = e
	}

	if overwrite {
		s.overwrote++
	} else {
		s.inserted++
	}
	s.unlock()

	// Wake the timer if this insertion may have decreased the minimum
	// fire_at: either the heap was empty, or the new entry fires strictly
	// before what the timer was sleeping on.
	if !haveOldMin || e.fireAt.Before(oldMin) {
		s.wake()
	}

	return nil
}

func (s *Scheduler) admitCancellation(ctx context.Context, r Cancellation) error {
	s.lock()
	e, ok := s.byID[r.ID]
	if !ok || e.tombstoned {
		s.unlock()
		return nil // idempotent no-op: cancelling twice, or an unknown id, does nothing
	}
	e.tombstoned = true
	delete(s.byID, r.ID)
	s.cancelled++
	s.unlock()
	// Cancellation does not wake the timer: a tombstone only ever makes the
	// heap's minimum pop faster than it would otherwise, it never needs the
	// timer to wake sooner than already planned.

	// Store.Delete runs without the heap lock held, like Store.Put.
	if err := s.store.Delete(ctx, r.ID); err != nil {
		return fmt.Errorf("%w: delete %q: %v", ErrStore, r.ID, err)
	}
	return nil
}

// Snapshot reports current activity counters.
func (s *Scheduler) Snapshot() Stats {
	s.lock()
	defer s.unlock()
	return Stats{
		Pending:   len(s.pq),
		Fired:     s.fired,
		Cancelled: s.cancelled,
		Overwrote: s.overwrote,
		Inserted:  s.inserted,
	}
}

// Run blocks, firing due schedules, until ctx is cancelled. It is the sole
// mutator that pops from the heap and the sole caller of Emitter.Publish.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		e, wait, ok := s.nextDue()
		if !ok {
			// Nothing pending; sleep until woken by an admission or
			// cancelled via ctx.
			select {
			case <-ctx.Done():
				return
			case <-s.wakeCh:
				continue
			}
		}

		if e != nil {
			s.fire(ctx, e)
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wakeCh:
			timer.Stop()
			continue
		case <-timer.C:
			continue
		}
	}
}

// nextDue pops and discards tombstoned entries, then reports either the
// single due entry ready to fire (e != nil), or how long to sleep before
// the earliest live entry is due, or ok == false if the heap is empty.
func (s *Scheduler) nextDue() (e *entry, wait time.Duration, ok bool) {
	s.lock()
	defer s.unlock()

	for len(s.pq) > 0 {
		top := s.pq[0]
		if top.tombstoned {
			heap.Pop(&s.pq)
			continue
		}

		now := s.clock.Now()
		if !top.fireAt.After(now) {
			heap.Pop(&s.pq)
			if top.durable {
				delete(s.byID, top.id)
			}
			return top, 0, true
		}

		return nil, top.fireAt.Sub(now), true
	}

	return nil, 0, false
}

// fire emits a popped entry and, if durable, deletes it from the store.
// The in-memory delete (already done by nextDue's heap.Pop) precedes the
// store delete.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	if err := s.emit.Publish(ctx, e.id, e.replySubject, e.payload, e.headers); err != nil {
		s.log.Error().Err(err).Str("reply_subject", e.replySubject).Msg("emit failed; schedule still considered fired")
	}

	s.lock()
	s.fired++
	s.unlock()

	if e.durable {
		if err := s.store.Delete(ctx, e.id); err != nil {
			s.log.Error().Err(err).Str("id", e.id).Msg("post-fire store delete failed")
		}
	}
}

// Wait blocks until Run has returned.
func (s *Scheduler) Wait() {
	<-s.doneCh
}
