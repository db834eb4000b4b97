package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askbuild/ask/internal/db"
	"github.com/askbuild/ask/internal/db/memorydb"
	"github.com/askbuild/ask/internal/future"
	"github.com/askbuild/ask/internal/qa"
	"github.com/askbuild/ask/internal/queue"
)

// literalAnswerVTable treats answers as plain strings.
type literalAnswerVTable struct{}

func (literalAnswerVTable) Equal(a1, a2 qa.Answer) bool     { return a1.(string) == a2.(string) }
func (literalAnswerVTable) Replicate(a qa.Answer) qa.Answer { return a }
func (literalAnswerVTable) Deallocate(a qa.Answer)          {}
func (literalAnswerVTable) Serialize(a qa.Answer) ([]byte, error) {
	return []byte(a.(string)), nil
}
func (literalAnswerVTable) Deserialize(data []byte) (qa.Answer, error) {
	return string(data), nil
}

// literalVTable answers every question with its own serialized text
// prefixed by "answer:" unless overridden via answers map.
type literalVTable struct {
	id      qa.UUID
	answers map[string]string
}

func (v *literalVTable) UUID() qa.UUID                 { return v.id }
func (v *literalVTable) AnswerVTable() qa.AnswerVTable { return literalAnswerVTable{} }
func (v *literalVTable) Answer(q qa.Question) (qa.Answer, error) {
	if a, ok := v.answers[q.(string)]; ok {
		return a, nil
	}
	return "answer:" + q.(string), nil
}
func (v *literalVTable) Equal(q1, q2 qa.Question) bool       { return q1 == q2 }
func (v *literalVTable) Replicate(q qa.Question) qa.Question { return q }
func (v *literalVTable) Deallocate(q qa.Question)            {}
func (v *literalVTable) Serialize(q qa.Question) ([]byte, error) {
	return []byte(q.(string)), nil
}
func (v *literalVTable) Deserialize(data []byte) (qa.Question, error) {
	return string(data), nil
}

func newTestEngine(t *testing.T, dispatch func(ctx *AnswerContext)) *Engine {
	t.Helper()
	q := queue.New(nil)
	e := New(memorydb.New(), qa.NewRegistry(), q, nil, DispatcherFunc(dispatch))
	go func() {
		_ = e.Run()
	}()
	t.Cleanup(func() { q.Close() })
	return e
}

// await blocks until f leaves Pending or the timeout elapses, and
// returns its final (answer, error) pair.
func await(t *testing.T, f *future.Future) (any, error) {
	t.Helper()
	done := make(chan struct{})
	var gotA any
	var gotErr error
	f.AddCallback(func(a any, err error) {
		gotA, gotErr = a, err
		close(done)
	})
	select {
	case <-done:
		return gotA, gotErr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for future to settle")
		return nil, nil
	}
}

func TestImmediateSucceed(t *testing.T) {
	vt := &literalVTable{id: qa.NewUUID()}
	e := newTestEngine(t, func(ctx *AnswerContext) {
		a, err := ctx.VTable().Answer(ctx.Question())
		require.NoError(t, err)
		ctx.Succeed(a)
	})

	got, err := await(t, e.Ask("hello", vt))
	require.NoError(t, err)
	require.Equal(t, "answer:hello", got)
}

func TestRuleNeedingTwoChildren(t *testing.T) {
	vt := &literalVTable{id: qa.NewUUID(), answers: map[string]string{"Q1": "v1", "Q2": "v2"}}

	dispatch := func(ctx *AnswerContext) {
		q := ctx.Question().(string)
		if q == "root" {
			join := ctx.Need([]qa.Question{"Q1", "Q2"}, []qa.QuestionVTable{vt, vt})
			join.AddCallback(func(a any, err error) {
				if err != nil {
					ctx.Fail(err)
					return
				}
				answers := a.([]any)
				ctx.Succeed(fmt.Sprintf("%s+%s", answers[0], answers[1]))
			})
			return
		}
		a, _ := vt.Answer(q)
		ctx.Succeed(a)
	}

	e := newTestEngine(t, dispatch)
	got, err := await(t, e.Ask("root", vt))
	require.NoError(t, err)
	require.Equal(t, "v1+v2", got)

	for _, q := range []string{"root", "Q1", "Q2"} {
		data, _ := vt.Serialize(q)
		_, found, lookErr := e.Database().LookUpAnswer(db.Fact{UUID: vt.UUID(), Data: data})
		require.NoError(t, lookErr)
		require.True(t, found, "expected an answer row for %s", q)
	}
}

func TestFailPropagation(t *testing.T) {
	vt := &literalVTable{id: qa.NewUUID()}

	dispatch := func(ctx *AnswerContext) {
		q := ctx.Question().(string)
		switch q {
		case "root":
			join := ctx.Need([]qa.Question{"Q1", "Q2"}, []qa.QuestionVTable{vt, vt})
			join.AddCallback(func(a any, err error) {
				if err != nil {
					ctx.Fail(err)
					return
				}
				ctx.Succeed("unreachable")
			})
		case "Q2":
			ctx.Fail(fmt.Errorf("Q2 failed"))
		default:
			a, _ := vt.Answer(q)
			ctx.Succeed(a)
		}
	}

	e := newTestEngine(t, dispatch)
	_, err := await(t, e.Ask("root", vt))
	require.Error(t, err)

	data, _ := vt.Serialize("root")
	_, found, lookErr := e.Database().LookUpAnswer(db.Fact{UUID: vt.UUID(), Data: data})
	require.NoError(t, lookErr)
	require.False(t, found, "a failed question must not get an answer row")
}

func TestCacheShortCircuit(t *testing.T) {
	dispatched := 0
	vt := &literalVTable{id: qa.NewUUID()}
	e := newTestEngine(t, func(ctx *AnswerContext) {
		dispatched++
		a, _ := vt.Answer(ctx.Question())
		ctx.Succeed(a)
	})

	_, err := await(t, e.Ask("x", vt))
	require.NoError(t, err)

	_, err = await(t, e.Ask("x", vt))
	require.NoError(t, err)

	require.Equal(t, 1, dispatched, "second Ask for the same question must hit the database cache")
}

func TestDoubleSucceedIsViolation(t *testing.T) {
	vt := &literalVTable{id: qa.NewUUID()}
	q := queue.New(nil)
	e := New(memorydb.New(), qa.NewRegistry(), q, nil, nil)

	var violated string
	e.SetViolationHandler(func(msg string) { violated = msg })
	e.dispatcher = DispatcherFunc(func(ctx *AnswerContext) {
		ctx.Succeed("first")
		ctx.Succeed("second")
	})

	go func() { _ = e.Run() }()
	t.Cleanup(func() { q.Close() })

	got, err := await(t, e.Ask("x", vt))
	require.NoError(t, err)
	require.Equal(t, "first", got)
	require.NotEmpty(t, violated)
}
