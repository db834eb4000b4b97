package process

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecInvokesOnExitZero(t *testing.T) {
	l := Allocate(4, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.RunAsync(ctx)

	var calls int32
	var code int
	done := make(chan struct{})
	l.Exec([]string{"true"}, func(c int) {
		atomic.AddInt32(&calls, 1)
		code = c
		close(done)
	}, func(err error) { t.Fatalf("unexpected spawn error: %v", err) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit callback")
	}

	require.EqualValues(t, 1, calls)
	require.Equal(t, 0, code)
}

func TestExecSerializesUnderLimitOne(t *testing.T) {
	// Every spawn under limit 1 must find no other child still running.
	var overlapped atomic.Bool
	var l *Loop
	l = Allocate(1, Config{NewCmd: func(argv []string) *exec.Cmd {
		if l.RunningCount() != 0 {
			overlapped.Store(true)
		}
		return exec.Command(argv[0], argv[1:]...)
	}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.RunAsync(ctx)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		i := i
		l.Exec([]string{"true"}, func(code int) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}, func(err error) {
			wg.Done()
		})
	}

	waitTimeout(t, &wg, 10*time.Second)
	require.Len(t, order, 3)
	require.False(t, overlapped.Load(), "a child started while another was still running")
}

func TestExecSpawnFailureReportsOnError(t *testing.T) {
	l := Allocate(4, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.RunAsync(ctx)

	done := make(chan error, 1)
	l.Exec([]string{"/no/such/binary-askbuild-test"}, func(code int) {
		t.Fatalf("unexpected exit callback")
	}, func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for spawn error")
	}
}

func TestStopCancelsQueuedEntries(t *testing.T) {
	l := Allocate(0, Config{}) // unbounded, but we queue manually to test Stop's cancellation path
	l.mu.Lock()
	l.stopReq = false
	l.mu.Unlock()

	var gotErr error
	l.mu.Lock()
	l.limit = 1
	l.running[999999] = &runningEntry{pid: 999999}
	l.queued = append(l.queued, queuedExec{argv: []string{"true"}, onError: func(err error) { gotErr = err }})
	l.mu.Unlock()

	l.Stop()
	require.ErrorIs(t, gotErr, ErrCancelled)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for WaitGroup")
	}
}
