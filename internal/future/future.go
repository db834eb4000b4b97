// Package future implements AnswerFuture: a single-assignment,
// reference-counted cell holding the eventual outcome of one or more
// questions, with one-shot state transitions and ordered callbacks.
package future

import (
	"fmt"
	"sync"
)

// State is the lifecycle stage of a Future.
type State int

const (
	// Pending means the future has not yet resolved or failed.
	Pending State = iota
	// Resolved means the future holds a final answer.
	Resolved
	// Failed means the future holds a final error.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ViolationPolicy decides what happens when code attempts to violate
// the future's one-shot contract (e.g. resolving twice). The default
// policy used by New is PanicOnViolation; a host that does not want
// a violation to panic installs its own ViolationPolicy via
// WithViolationHandler.
type ViolationPolicy func(msg string)

// PanicOnViolation is the strict policy: a contract violation panics.
func PanicOnViolation(msg string) { panic("future: " + msg) }

// Callback is invoked exactly once when a Future leaves Pending. a is
// non-nil only when the future resolved; err is non-nil only when it
// failed.
type Callback func(a any, err error)

// Future is a single-assignment cell. Zero value is not usable; use
// New or Join.
type Future struct {
	mu        sync.Mutex
	state     State
	answer    any
	err       error
	callbacks []Callback
	refs      int32

	onViolation ViolationPolicy

	// answerCount is the number of answer slots this future
	// represents; 1 for a plain future, sum(children) for a join.
	answerCount int

	// deallocate releases the stored answer through its vtable on
	// final release. Optional; plain futures may pass nil.
	deallocate func(a any)
}

// Option configures a new Future.
type Option func(*Future)

// WithViolationHandler overrides the default panic-on-violation policy.
func WithViolationHandler(p ViolationPolicy) Option {
	return func(f *Future) { f.onViolation = p }
}

// WithDeallocator registers a function invoked on the stored answer
// when the future's final reference is released.
func WithDeallocator(fn func(a any)) Option {
	return func(f *Future) { f.deallocate = fn }
}

// New creates a Pending future with one reference and one answer slot.
func New(opts ...Option) *Future {
	f := &Future{
		state:       Pending,
		refs:        1,
		answerCount: 1,
		onViolation: PanicOnViolation,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state under lock.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// AnswerCount returns the number of answer slots this future holds
// (1 for a plain future, sum of children for a join).
func (f *Future) AnswerCount() int {
	return f.answerCount
}

// Resolve transitions the future to Resolved with answer a. Resolving
// an already-settled future is a contract violation handled by the
// future's ViolationPolicy; the stored value is never overwritten.
func (f *Future) Resolve(a any) {
	f.settle(Resolved, a, nil)
}

// Fail transitions the future to Failed with error err.
func (f *Future) Fail(err error) {
	if err == nil {
		err = fmt.Errorf("future: Fail called with nil error")
	}
	f.settle(Failed, nil, err)
}

func (f *Future) settle(state State, a any, err error) {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		f.onViolation(fmt.Sprintf("attempted to %s an already-%s future", state, f.state))
		return
	}
	f.state = state
	f.answer = a
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(a, err)
	}
}

// AddCallback registers cb to run once the future leaves Pending. If
// the future has already settled, cb runs synchronously before
// AddCallback returns. Callbacks fire in registration order relative
// to each other, at most once.
func (f *Future) AddCallback(cb Callback) {
	f.mu.Lock()
	if f.state == Pending {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	state, a, err := f.state, f.answer, f.err
	f.mu.Unlock()
	_ = state
	cb(a, err)
}

// Retain increments the reference count.
func (f *Future) Retain() {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
}

// Release decrements the reference count. On the final release, a
// Resolved future's answer is deallocated through the registered
// deallocator, if any. Releasing a future still Pending is legal: it
// silently discards any callbacks that have not yet fired, since no
// further transition will ever invoke them via this reference.
func (f *Future) Release() {
	f.mu.Lock()
	f.refs--
	remaining := f.refs
	state := f.state
	a := f.answer
	dealloc := f.deallocate
	if remaining <= 0 {
		f.callbacks = nil
	}
	f.mu.Unlock()

	if remaining <= 0 && state == Resolved && dealloc != nil {
		dealloc(a)
	}
}
