// Package process implements ProcessLoop: an event-loop component
// that spawns, tracks, and reaps child processes on behalf of
// suspended rules, with a bounded concurrency budget.
//
// The spec's kqueue/signalfd/SIGCHLD exit-delivery variants (spec.md
// §4.6) exist to solve a problem Go's runtime already solves for
// every platform: os/exec's Cmd.Wait blocks its calling goroutine
// until the child exits and the goroutine scheduler multiplexes
// thousands of such waits onto a handful of OS threads. This package
// keeps the spec's queueing discipline and concurrency cap, and
// renders the "exit delivery variant" as one dedicated Wait goroutine
// per running child reporting onto a single internal exit channel —
// the idiomatic-Go equivalent of "a wake source the loop polls",
// without needing platform-specific poll primitives.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// OnExit is invoked with the child's exit code. A child killed by a
// signal reports a negative, platform-agnostic placeholder code (-1).
// A child that fails to start, whether spawned at once or after being
// queued, is reported through OnError instead, as is a queued entry
// cancelled by Stop.
type OnExit func(code int)

// OnError is invoked for spawn failures and queued-but-never-spawned
// cancellations.
type OnError func(err error)

// ErrCancelled is delivered to a queued entry's OnError when Stop is
// called before that entry ever got a slot.
var ErrCancelled = fmt.Errorf("process: cancelled before spawn")

// Config selects platform behavior. The single Go rendering of the
// spec's kqueue/sigchld_masked/sigchld_call variants needs no
// platform selection, but Config is kept as a construction parameter
// so callers can plug in a different exec.Cmd factory. (internal/builtin's
// pty-attached ExecQuestion does not go through this loop; it starts
// its child with pty.Start directly.)
type Config struct {
	// NewCmd builds the *exec.Cmd for argv. Defaults to exec.Command.
	NewCmd func(argv []string) *exec.Cmd
}

type queuedExec struct {
	argv    []string
	onExit  OnExit
	onError OnError
}

type runningEntry struct {
	pid    int
	cmd    *exec.Cmd
	onExit OnExit
}

type exitEvent struct {
	pid  int
	code int
}

// LoopState is the loop's observable run state.
type LoopState int

const (
	NotRunning LoopState = iota
	Polling
	Busy
)

// Loop owns the set of outstanding child processes and a bounded
// concurrency budget.
type Loop struct {
	limit int
	cfg   Config

	mu       sync.Mutex
	cond     *sync.Cond
	state    LoopState
	stopReq  bool
	running  map[int]*runningEntry
	queued   []queuedExec
	exitCh   chan exitEvent
	readyCh  chan struct{}
	wg       conc.WaitGroup
	stopOnce sync.Once
}

// Allocate prepares a ProcessLoop with the given concurrency limit.
// limit <= 0 means unbounded.
func Allocate(limit int, cfg Config) *Loop {
	if cfg.NewCmd == nil {
		cfg.NewCmd = func(argv []string) *exec.Cmd { return exec.Command(argv[0], argv[1:]...) }
	}
	l := &Loop{
		limit:   limit,
		cfg:     cfg,
		running: make(map[int]*runningEntry),
		exitCh:  make(chan exitEvent, 16),
		readyCh: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Exec spawns argv immediately if a concurrency slot is free,
// otherwise queues a heap copy of argv (FIFO) for later spawn.
func (l *Loop) Exec(argv []string, onExit OnExit, onError OnError) {
	argvCopy := append([]string(nil), argv...)

	l.mu.Lock()
	if l.stopReq {
		l.mu.Unlock()
		if onError != nil {
			onError(ErrCancelled)
		}
		return
	}
	if l.limit <= 0 || len(l.running) < l.limit {
		l.mu.Unlock()
		l.spawn(argvCopy, onExit, onError)
		return
	}
	l.queued = append(l.queued, queuedExec{argv: argvCopy, onExit: onExit, onError: onError})
	l.mu.Unlock()
}

// spawn starts argv and registers a Wait goroutine. Spawn failures
// are reported through onError synchronously on the calling
// goroutine, matching spec.md §4.6's posix_spawn error semantics.
func (l *Loop) spawn(argv []string, onExit OnExit, onError OnError) {
	cmd := l.cfg.NewCmd(argv)
	if err := cmd.Start(); err != nil {
		if onError != nil {
			onError(fmt.Errorf("process: spawn %v: %w", argv, err))
		}
		return
	}

	pid := cmd.Process.Pid
	l.mu.Lock()
	l.running[pid] = &runningEntry{pid: pid, cmd: cmd, onExit: onExit}
	l.mu.Unlock()

	l.wg.Go(func() {
		err := cmd.Wait()
		code := exitCodeOf(cmd, err)
		l.exitCh <- exitEvent{pid: pid, code: code}
	})
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// RunSync enters the poll loop on the calling goroutine, consuming
// exit events until Stop is called and every in-flight child has been
// reaped.
func (l *Loop) RunSync(ctx context.Context) error {
	l.mu.Lock()
	l.state = Polling
	l.mu.Unlock()
	close(l.readyCh)

	defer func() {
		l.mu.Lock()
		l.state = NotRunning
		l.cond.Broadcast()
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		quiescent := l.stopReq && len(l.running) == 0 && len(l.queued) == 0
		l.mu.Unlock()
		if quiescent {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-l.exitCh:
			l.handleExit(ev)
		}
	}
}

// RunAsync starts RunSync on an internal goroutine and returns once
// that goroutine has entered the loop.
func (l *Loop) RunAsync(ctx context.Context) {
	go func() { _ = l.RunSync(ctx) }()
	<-l.readyCh
}

func (l *Loop) handleExit(ev exitEvent) {
	l.mu.Lock()
	l.state = Busy
	entry, ok := l.running[ev.pid]
	delete(l.running, ev.pid)
	l.mu.Unlock()

	if ok && entry.onExit != nil {
		l.safeCall(func() { entry.onExit(ev.code) })
	}

	l.drainQueue()

	l.mu.Lock()
	l.state = Polling
	l.mu.Unlock()
}

// drainQueue spawns queued entries until either the queue is empty or
// the cap is saturated again.
func (l *Loop) drainQueue() {
	for {
		l.mu.Lock()
		if len(l.queued) == 0 || (l.limit > 0 && len(l.running) >= l.limit) {
			l.mu.Unlock()
			return
		}
		next := l.queued[0]
		l.queued = l.queued[1:]
		l.mu.Unlock()

		l.spawn(next.argv, next.onExit, next.onError)
	}
}

// safeCall invokes fn, converting a panic into a no-op rather than
// crashing the loop — callbacks are host code and must not be able to
// take the whole engine down.
func (l *Loop) safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// Stop requests termination at the next quiescence point. Queued
// entries that never got a slot have their OnError invoked with
// ErrCancelled; already-spawned children still deliver their exit
// callback normally.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopReq = true
		queued := l.queued
		l.queued = nil
		l.mu.Unlock()

		for _, q := range queued {
			if q.onError != nil {
				q.onError(ErrCancelled)
			}
		}
		// Wake a blocked RunSync so it observes the new quiescence
		// condition even with no pending exit events.
		select {
		case l.exitCh <- exitEvent{pid: -1}:
		default:
		}
	})
}

// Deallocate stops the loop and, if forceKillTimeout > 0, sends
// SIGTERM to any outstanding children, escalating to SIGKILL for any
// still alive after the timeout. It waits for the loop to reach
// NotRunning before returning.
func (l *Loop) Deallocate(forceKillTimeout time.Duration) {
	l.Stop()

	if forceKillTimeout > 0 {
		l.mu.Lock()
		var remaining []*runningEntry
		for _, e := range l.running {
			remaining = append(remaining, e)
		}
		l.mu.Unlock()

		for _, e := range remaining {
			_ = e.cmd.Process.Signal(terminateSignal())
		}
		if len(remaining) > 0 && forceKillTimeout > 0 {
			time.AfterFunc(forceKillTimeout, func() {
				l.mu.Lock()
				stillRunning := make([]*runningEntry, 0, len(l.running))
				for _, e := range l.running {
					stillRunning = append(stillRunning, e)
				}
				l.mu.Unlock()
				for _, e := range stillRunning {
					_ = e.cmd.Process.Kill()
				}
			})
		}
	}

	l.mu.Lock()
	for l.state != NotRunning {
		l.cond.Wait()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// State returns the loop's current observable state, for status
// reporting (internal/statusd).
func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RunningCount and QueuedCount report current load, for status
// reporting and tests.
func (l *Loop) RunningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

func (l *Loop) QueuedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queued)
}
