package bridge

import (
	"context"
	"errors"
	"sync"
)

// errQueueFull is returned by Acquire when the wait queue is at capacity.
var errQueueFull = errors.New("worker slot queue is full")

// dynamicSemaphore is a context-aware, dynamically-resizable concurrency limiter.
//
// A limit of 0 means unlimited; Acquire always succeeds immediately.
// maxWaiting bounds how many goroutines may block in Acquire (0 = unbounded).
// Use SetLimit to adjust capacity at runtime; blocked goroutines are woken
// via Cond.Broadcast so they can re-evaluate.
//
// Waiters are served in arrival order, and a new caller never takes a free
// slot while anyone is queued.
type dynamicSemaphore struct {
	mu         sync.Mutex
	cond       *sync.Cond
	limit      int // 0 = unlimited
	maxWaiting int // 0 = unbounded
	acquired   int
	waiting    int

	// Tickets: the waiter holding serving is at the head of the queue.
	// left records tickets that gave up or finished ahead of their turn.
	nextTicket uint64
	serving    uint64
	left       map[uint64]struct{}
}

// newDynamicSemaphore creates a semaphore with the given initial limit and
// wait-queue bound. Negative values are clamped to 0.
func newDynamicSemaphore(limit, maxWaiting int) *dynamicSemaphore {
	s := &dynamicSemaphore{
		limit:      max(limit, 0),
		maxWaiting: max(maxWaiting, 0),
		left:       make(map[uint64]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until a slot is available or the context ends.
// It returns errQueueFull without blocking when the wait queue is full,
// or the context error if the context ends first.
func (s *dynamicSemaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit == 0 || (s.waiting == 0 && s.acquired < s.limit) {
		s.acquired++
		return nil
	}
	if s.maxWaiting > 0 && s.waiting >= s.maxWaiting {
		return errQueueFull
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Wake waiters when the context ends. Taking the lock orders the
	// broadcast after the waiter's ctx check.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	ticket := s.nextTicket
	s.nextTicket++
	s.waiting++
	defer s.leave(ticket)

	for !s.ready(ticket) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.acquired++
	return nil
}

// ready reports whether the waiter holding ticket may take a slot.
// Caller must hold s.mu.
func (s *dynamicSemaphore) ready(ticket uint64) bool {
	if s.limit == 0 {
		return true
	}
	return ticket == s.serving && s.acquired < s.limit
}

// leave removes ticket from the queue and, if it was the head, passes the
// head to the next waiter still queued. Caller must hold s.mu.
func (s *dynamicSemaphore) leave(ticket uint64) {
	s.waiting--
	if ticket != s.serving {
		s.left[ticket] = struct{}{}
		return
	}
	s.serving++
	for {
		if _, ok := s.left[s.serving]; !ok {
			break
		}
		delete(s.left, s.serving)
		s.serving++
	}
	s.cond.Broadcast()
}

// Release frees a slot and wakes the waiters.
func (s *dynamicSemaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired > 0 {
		s.acquired--
	}
	// Broadcast rather than Signal: a waiter whose context just ended would
	// swallow a single wakeup.
	s.cond.Broadcast()
}

// SetLimit adjusts the capacity. Negative values are clamped to 0 (unlimited).
// Shrinking never preempts running holders; new acquirers wait until enough
// slots are released.
func (s *dynamicSemaphore) SetLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limit = max(n, 0)
	s.cond.Broadcast()
}

// SetMaxWaiting adjusts the wait-queue bound. Requests already waiting are
// not evicted.
func (s *dynamicSemaphore) SetMaxWaiting(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxWaiting = max(n, 0)
}

// Limit returns the current limit (0 = unlimited).
func (s *dynamicSemaphore) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Acquired returns the number of currently acquired slots.
func (s *dynamicSemaphore) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// Waiting returns the number of goroutines blocked in Acquire.
func (s *dynamicSemaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}
