// Package queue implements QuestionQueue: a thread-safe FIFO of
// pending work, drained by the dispatch loop and woken through an
// injectable signal channel that a loop can select on alongside other
// channels of its own.
package queue

import (
	"sync"

	"github.com/askbuild/ask/internal/qa"
)

// AnswerCallback receives the outcome of answering a queued question:
// a on success, err on failure. Exactly one of a/err is set.
type AnswerCallback func(a qa.Answer, err error)

// Item is one unit of pending work: an owned question, its vtable,
// the callback to invoke with the eventual answer, and a deallocator
// run when the item is discarded without ever being dispatched (queue
// close, or explicit drain).
type Item struct {
	Question qa.Question
	VTable   qa.QuestionVTable
	Callback AnswerCallback

	// Deallocate releases Question (and any opaque user data closed
	// over by Callback) when the item is dropped without dispatch.
	Deallocate func()
}

// WakeSource is signaled on every Enqueue and on Close; a signal not
// yet consumed absorbs later ones. Construction parameter so a
// dispatch loop can select on this channel alongside its own channels.
type WakeSource chan struct{}

// NewWakeSource returns a buffered, single-slot wake channel suitable
// for use as a WakeSource: sending never blocks, and a pending signal
// coalesces repeated wakeups into one.
func NewWakeSource() WakeSource {
	return make(WakeSource, 1)
}

func (w WakeSource) signal() {
	select {
	case w <- struct{}{}:
	default:
	}
}

// Queue is a thread-safe FIFO of Items.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	closed bool
	wake   WakeSource
}

// New returns an empty, open Queue that signals wake on Enqueue/Close.
// If wake is nil, one is allocated.
func New(wake WakeSource) *Queue {
	if wake == nil {
		wake = NewWakeSource()
	}
	return &Queue{wake: wake}
}

// Wake returns the queue's wake source, for multiplexing in a select.
func (q *Queue) Wake() WakeSource {
	return q.wake
}

// Enqueue appends item to the tail of the queue and signals the wake
// source. Enqueueing onto a closed queue deallocates item immediately
// instead of accepting it.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		if item.Deallocate != nil {
			item.Deallocate()
		}
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.wake.signal()
}

// DequeueResult is the outcome of TryDequeue.
type DequeueResult int

const (
	// Got means Item is valid and should be dispatched.
	Got DequeueResult = iota
	// Empty means the queue is open but currently has no items.
	Empty
	// Closed means the queue is closed and fully drained.
	Closed
)

// TryDequeue pops the head item, if any. It returns Closed only once
// the queue has been closed AND fully drained; until then, a closed
// queue with remaining items still yields Got.
func (q *Queue) TryDequeue() (Item, DequeueResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return Item{}, Closed
		}
		return Item{}, Empty
	}

	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return item, Got
}

// Close marks the queue closed and signals the wake source once more
// so a blocked dispatch loop observes the transition. Subsequent
// TryDequeue calls drain remaining items before reporting Closed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake.signal()
}

// Deallocate drains any remaining items and invokes each one's
// Deallocate function. Intended for shutdown after Close, to release
// questions that were never dispatched.
func (q *Queue) Deallocate() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range items {
		if item.Deallocate != nil {
			item.Deallocate()
		}
	}
}

// Len reports the number of items currently queued, for status
// reporting (e.g. internal/statusd).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
