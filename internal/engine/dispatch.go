package engine

import (
	"github.com/askbuild/ask/internal/queue"
)

// DispatchOne examines one queue item: on a database cache hit it
// short-circuits straight to the item's callback; on a miss it builds
// an AnswerContext and hands it to the host Dispatcher.
func (e *Engine) DispatchOne(item queue.Item) {
	fact, err := factOf(item.VTable, item.Question)
	if err != nil {
		item.Callback(nil, err)
		return
	}

	if cached, found, err := e.db.LookUpAnswer(fact); err == nil && found {
		answer, derr := item.VTable.AnswerVTable().Deserialize(cached)
		if derr != nil {
			// A row that fails to deserialize surfaces to the caller;
			// the row itself is left in place (spec.md §4.5) rather
			// than silently dropped.
			item.Callback(nil, derr)
			return
		}
		item.Callback(answer, nil)
		return
	}

	ctx := &AnswerContext{
		engine:   e,
		question: item.Question,
		vtable:   item.VTable,
		callback: item.Callback,
	}
	e.dispatcher.Dispatch(ctx)
}

// Run drains the queue until it is closed, dispatching each item in
// enqueue order. Suspended dispatches (via Need) do not block this
// loop: they return immediately after registering a continuation, and
// their eventual Succeed/Fail arrives asynchronously through whatever
// goroutine resolved their join future.
func (e *Engine) Run() error {
	for {
		item, res := e.queue.TryDequeue()
		switch res {
		case queue.Got:
			e.DispatchOne(item)
		case queue.Empty:
			<-e.queue.Wake()
		case queue.Closed:
			return nil
		}
	}
}
