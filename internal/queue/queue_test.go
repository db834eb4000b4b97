package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askbuild/ask/internal/qa"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(nil)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		q.Enqueue(Item{Question: name, Callback: func(a qa.Answer, err error) {
			order = append(order, name)
		}})
	}

	for i := 0; i < 3; i++ {
		item, res := q.TryDequeue()
		require.Equal(t, Got, res)
		item.Callback(nil, nil)
	}
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTryDequeueEmpty(t *testing.T) {
	q := New(nil)
	_, res := q.TryDequeue()
	require.Equal(t, Empty, res)
}

func TestCloseThenDrainThenClosed(t *testing.T) {
	q := New(nil)
	q.Enqueue(Item{Question: "x"})
	q.Close()

	_, res := q.TryDequeue()
	require.Equal(t, Got, res, "remaining items still dispatch after close")

	_, res = q.TryDequeue()
	require.Equal(t, Closed, res)
}

func TestEnqueueAfterCloseDeallocatesImmediately(t *testing.T) {
	q := New(nil)
	q.Close()

	deallocated := false
	q.Enqueue(Item{Question: "x", Deallocate: func() { deallocated = true }})
	require.True(t, deallocated)

	_, res := q.TryDequeue()
	require.Equal(t, Closed, res)
}

func TestDeallocateDrainsRemainingItems(t *testing.T) {
	q := New(nil)
	var deallocated []string
	for _, name := range []string{"a", "b"} {
		name := name
		q.Enqueue(Item{Question: name, Deallocate: func() { deallocated = append(deallocated, name) }})
	}

	q.Deallocate()
	require.ElementsMatch(t, []string{"a", "b"}, deallocated)
	require.Equal(t, 0, q.Len())
}

func TestWakeSignalsOnEnqueueAndClose(t *testing.T) {
	q := New(nil)
	q.Enqueue(Item{Question: "x"})

	select {
	case <-q.Wake():
	default:
		t.Fatal("expected wake signal after enqueue")
	}

	q.Close()
	select {
	case <-q.Wake():
	default:
		t.Fatal("expected wake signal after close")
	}
}
