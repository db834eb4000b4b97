package future

import "sync"

// Join returns a parent Future that resolves once every child has
// left Pending. The parent carries sum(children.AnswerCount()) slots;
// on success its answer is a []any of each child's (replicated)
// answer in order. If any child fails, the parent fails immediately
// with that child's error (short-circuit) — still-pending siblings
// are allowed to complete independently, but their eventual answers
// are discarded by the join (the caller owns releasing them via their
// own future references).
//
// replicate is applied to each child's resolved answer before it is
// placed in the parent's slot, matching the spec's "replicated into
// the parent's slot" transfer semantics; pass nil to skip replication
// (e.g. when answers are cheap-to-share immutable values).
func Join(children []*Future, replicate func(a any) any) *Future {
	parent := New()
	if len(children) == 0 {
		parent.Resolve([]any{})
		return parent
	}

	total := 0
	for _, c := range children {
		total += c.AnswerCount()
	}
	parent.answerCount = total

	var mu sync.Mutex
	slots := make([]any, len(children))
	remaining := len(children)
	failed := false

	for i, child := range children {
		i, child := i, child
		child.AddCallback(func(a any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if failed {
				return
			}
			if err != nil {
				failed = true
				parent.Fail(err)
				return
			}
			if replicate != nil {
				a = replicate(a)
			}
			slots[i] = a
			remaining--
			if remaining == 0 {
				parent.Resolve(slots)
			}
		})
	}

	return parent
}
