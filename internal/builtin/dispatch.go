package builtin

import (
	"fmt"

	"github.com/askbuild/ask/internal/engine"
	"github.com/askbuild/ask/internal/qa"
)

// RegisterAll registers every builtin vtable's identity in reg so
// RecheckAll's conservative-staleness check recognizes them.
func RegisterAll(reg *qa.Registry) {
	reg.Register(EnvVTable{})
	reg.Register(FileStatVTable{})
	reg.Register(ExecVTable{})
}

// Dispatch answers EnvQuestion, FileStatQuestion, and ExecQuestion
// synchronously through their vtable's Answer method. It is meant to
// be composed with a host's own Dispatcher — e.g. falling through to
// it for any question type builtin doesn't recognize:
//
//	engine.DispatcherFunc(func(ctx *engine.AnswerContext) {
//	    if builtin.Dispatch(ctx) {
//	        return
//	    }
//	    myDispatcher.Dispatch(ctx)
//	})
//
// ExecQuestion is answered synchronously rather than through the
// engine's ProcessLoop: ProcessLoop's Exec/onExit contract reports
// only an exit code, with no stdout sink to capture the output an
// ExecAnswer carries. A host that needs ExecQuestion dispatch bounded
// by the same concurrency cap as its other child processes should
// gate calls into this dispatcher behind its own semaphore.
func Dispatch(ctx *engine.AnswerContext) bool {
	switch ctx.Question().(type) {
	case EnvQuestion:
		answer(ctx, EnvVTable{})
	case FileStatQuestion:
		answer(ctx, FileStatVTable{})
	case ExecQuestion:
		answer(ctx, ExecVTable{})
	default:
		return false
	}
	return true
}

func answer(ctx *engine.AnswerContext, vt qa.QuestionVTable) {
	a, err := vt.Answer(ctx.Question())
	if err != nil {
		ctx.Fail(fmt.Errorf("builtin: %w", err))
		return
	}
	ctx.Succeed(a)
}
