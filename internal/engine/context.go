package engine

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/askbuild/ask/internal/future"
	"github.com/askbuild/ask/internal/qa"
	"github.com/askbuild/ask/internal/queue"
)

// AnswerContext is the per-question handle passed to a Dispatcher.
// Exactly one of Succeed/SucceedAnswer/Fail/Need terminates dispatch
// of its question; Need is non-terminal and returns a Future the
// dispatcher typically attaches a continuation to.
type AnswerContext struct {
	engine   *Engine
	question qa.Question
	vtable   qa.QuestionVTable
	callback queue.AnswerCallback

	mu         sync.Mutex
	terminated bool
}

// Question returns the question being answered.
func (c *AnswerContext) Question() qa.Question { return c.question }

// VTable returns the question's vtable.
func (c *AnswerContext) VTable() qa.QuestionVTable { return c.vtable }

func (c *AnswerContext) markTerminal(how string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		c.engine.onViolate(fmt.Sprintf("AnswerContext for question already terminated (second call: %s)", how))
		return false
	}
	c.terminated = true
	return true
}

// Succeed records (question,answer) in the database, invokes the
// answer callback with the answer, and releases the context.
func (c *AnswerContext) Succeed(a qa.Answer) {
	if !c.markTerminal("succeed") {
		return
	}
	fact, err := factOf(c.vtable, c.question)
	if err != nil {
		c.callback(nil, err)
		return
	}
	aData, err := c.vtable.AnswerVTable().Serialize(a)
	if err != nil {
		c.callback(nil, fmt.Errorf("engine: serialize answer: %w", err))
		return
	}
	if err := c.engine.db.RecordAnswer(fact, aData); err != nil {
		c.callback(nil, err)
		return
	}
	c.callback(a, nil)
}

// SucceedAnswer is an alias for Succeed, matching the spec's naming
// of both forms (succeed / succeed_answer) for the same operation.
func (c *AnswerContext) SucceedAnswer(a qa.Answer) { c.Succeed(a) }

// Fail does not record an answer row; it invokes the answer callback
// with (nil, err) and releases the context.
func (c *AnswerContext) Fail(err error) {
	if !c.markTerminal("fail") {
		return
	}
	if err == nil {
		err = fmt.Errorf("engine: Fail called with nil error")
	}
	c.callback(nil, err)
}

// Need records a dependency edge from this question to each of
// questions, replicates and enqueues them, and returns a join future
// that resolves once every sub-question has an answer (or fails as
// soon as any of them fails). Need is non-terminal: it may be
// followed by further calls once the returned future settles.
func (c *AnswerContext) Need(questions []qa.Question, vtables []qa.QuestionVTable) *future.Future {
	if len(questions) != len(vtables) {
		panic("engine: Need called with mismatched questions/vtables lengths")
	}

	parentFact, err := factOf(c.vtable, c.question)
	children := make([]*future.Future, len(questions))

	for i, q := range questions {
		vt := vtables[i]

		if err == nil {
			if childFact, ferr := factOf(vt, q); ferr == nil {
				_ = c.engine.db.RecordDependency(parentFact, childFact)
			}
		}

		childCopy := vt.Replicate(q)
		f := future.New()
		children[i] = f

		c.engine.enqueue(childCopy, vt, func(a qa.Answer, cbErr error) {
			if cbErr != nil {
				f.Fail(cbErr)
				return
			}
			f.Resolve(vt.AnswerVTable().Replicate(a))
		})
	}

	return future.Join(children, nil)
}

// Exec is a convenience built on the configured ProcessLoop: it
// submits argv for execution and, on exit status 0, calls Succeed
// with the answer produced by toAnswer(0); on a nonzero exit it calls
// Fail(EIO); on spawn failure it calls Fail(err). toAnswer may be nil
// if the vtable's answer carries no information beyond "it succeeded".
func (c *AnswerContext) Exec(argv []string, toAnswer func(exitCode int) qa.Answer) {
	if c.engine.proc == nil {
		c.Fail(fmt.Errorf("engine: Exec called with no ProcessLoop configured"))
		return
	}
	c.engine.proc.Exec(argv,
		func(code int) {
			if code != 0 {
				c.Fail(syscall.EIO)
				return
			}
			var a qa.Answer
			if toAnswer != nil {
				a = toAnswer(code)
			}
			c.Succeed(a)
		},
		func(err error) {
			c.Fail(err)
		},
	)
}
