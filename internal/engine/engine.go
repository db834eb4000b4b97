// Package engine implements the dispatch loop and AnswerContext: the
// cooperative scheduler that turns pending questions into running
// rule bodies, letting a rule suspend itself (via Need) until the
// answers it requested become available.
package engine

import (
	"fmt"

	"github.com/askbuild/ask/internal/db"
	"github.com/askbuild/ask/internal/future"
	"github.com/askbuild/ask/internal/process"
	"github.com/askbuild/ask/internal/qa"
	"github.com/askbuild/ask/internal/queue"
)

// Dispatcher is the host-supplied decision function named in spec.md
// §6: given a question's AnswerContext, decide how to answer it.
// Exactly one of the context's terminating methods must be called,
// possibly from a callback registered on the future Need returns.
type Dispatcher interface {
	Dispatch(ctx *AnswerContext)
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(ctx *AnswerContext)

func (f DispatcherFunc) Dispatch(ctx *AnswerContext) { f(ctx) }

// ViolationHandler is invoked when host code violates the
// AnswerContext/AnswerFuture one-call contract (e.g. calling Succeed
// twice). The handler is replaceable via SetViolationHandler; the
// default handler panics, since a contract violation is always a bug
// in the calling rule and wants to fail loudly in development.
type ViolationHandler func(msg string)

func defaultViolationHandler(msg string) { panic("engine: " + msg) }

// Engine wires together the Database, QuestionQueue, ProcessLoop, and
// a host Dispatcher into the control flow described in spec.md §2.
type Engine struct {
	db         db.Database
	registry   *qa.Registry
	queue      *queue.Queue
	proc       *process.Loop
	dispatcher Dispatcher
	onViolate  ViolationHandler
}

// New builds an Engine. proc may be nil if no dispatcher uses
// AnswerContext.Exec.
func New(database db.Database, registry *qa.Registry, q *queue.Queue, proc *process.Loop, dispatcher Dispatcher) *Engine {
	return &Engine{
		db:         database,
		registry:   registry,
		queue:      q,
		proc:       proc,
		dispatcher: dispatcher,
		onViolate:  defaultViolationHandler,
	}
}

// SetViolationHandler overrides the default panic-on-violation policy.
func (e *Engine) SetViolationHandler(h ViolationHandler) {
	if h != nil {
		e.onViolate = h
	}
}

// ProcessLoop exposes the configured ProcessLoop, for dispatchers that
// need it directly rather than through AnswerContext.Exec.
func (e *Engine) ProcessLoop() *process.Loop { return e.proc }

// Registry exposes the vtable registry, primarily so a host can call
// RecheckAll with the full known set.
func (e *Engine) Registry() *qa.Registry { return e.registry }

// Database exposes the backing Database, for RecheckAll and status
// reporting.
func (e *Engine) Database() db.Database { return e.db }

// QueueDepth reports the number of items currently waiting to be
// dispatched, for status reporting (internal/statusd).
func (e *Engine) QueueDepth() int { return e.queue.Len() }

// Ask enqueues a root question and returns a Future that resolves (or
// fails) once it has been answered. vt must be registered.
func (e *Engine) Ask(q qa.Question, vt qa.QuestionVTable) *future.Future {
	f := future.New()
	e.enqueue(q, vt, func(a qa.Answer, err error) {
		if err != nil {
			f.Fail(err)
			return
		}
		f.Resolve(a)
	})
	return f
}

func (e *Engine) enqueue(q qa.Question, vt qa.QuestionVTable, cb queue.AnswerCallback) {
	e.queue.Enqueue(queue.Item{
		Question: q,
		VTable:   vt,
		Callback: cb,
		Deallocate: func() {
			vt.Deallocate(q)
		},
	})
}

func factOf(vt qa.QuestionVTable, q qa.Question) (db.Fact, error) {
	data, err := vt.Serialize(q)
	if err != nil {
		return db.Fact{}, fmt.Errorf("engine: serialize question: %w", err)
	}
	return db.Fact{UUID: vt.UUID(), Data: data}, nil
}
