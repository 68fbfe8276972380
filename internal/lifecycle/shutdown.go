// Package lifecycle provides ShutdownHelper, the base that pkg/bridge's
// NativeCore and ForeignCore (and their NativeWorkerChild and
// ForeignInstanceChild adapters) embed to get pause/activate/shutdown
// semantics and child-lifetime composition,
// satisfying github.com/sammck-go/asyncobj.AsyncShutdowner.
package lifecycle

import (
	"context"
	"sync"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/asyncobj"
)

// OnceShutdownHandler is implemented by the object a ShutdownHelper manages.
type OnceShutdownHandler interface {
	// HandleOnceShutdown runs exactly once, in its own goroutine, and never
	// while shutdown is paused. It takes an advisory completion error and
	// returns the real completion error.
	HandleOnceShutdown(completionErr error) error
}

// Child is anything that can be waited on and told to start shutting down.
// asyncobj.AsyncShutdowner is exactly this contract, so any object built on
// ShutdownHelper -- another ShutdownHelper, or one of pkg/bridge's cores and
// child adapters -- is itself a valid Child.
type Child = asyncobj.AsyncShutdowner

var _ asyncobj.AsyncShutdowner = (*ShutdownHelper)(nil)

// ShutdownHelper manages clean asynchronous shutdown for an
// OnceShutdownHandler. Embed it by value and call Init from
// the constructor.
type ShutdownHelper struct {
	corelog.Logger

	mu sync.Mutex

	handler OnceShutdownHandler

	pauseCount int
	activated  bool
	scheduled  bool
	started    bool
	done       bool
	err        error

	startedChan    chan struct{}
	handlerDoneCh  chan struct{}
	doneChan       chan struct{}
	wg             sync.WaitGroup
}

// Init wires the helper to its handler and logger. Must be called once
// before any other method.
func (h *ShutdownHelper) Init(logger corelog.Logger, handler OnceShutdownHandler) {
	h.Logger = logger
	h.handler = handler
	h.startedChan = make(chan struct{})
	h.handlerDoneCh = make(chan struct{})
	h.doneChan = make(chan struct{})
}

func (h *ShutdownHelper) runShutdown() {
	close(h.startedChan)
	go func() {
		h.err = h.handler.HandleOnceShutdown(h.err)
		close(h.handlerDoneCh)
		h.wg.Wait()
		h.mu.Lock()
		h.done = true
		h.mu.Unlock()
		close(h.doneChan)
	}()
}

// PauseShutdown prevents shutdown from actually running until a matching
// ResumeShutdown. Fails if shutdown has already started running.
func (h *ShutdownHelper) PauseShutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return h.Errorf("shutdown already started; cannot pause")
	}
	h.pauseCount++
	return nil
}

// ResumeShutdown undoes one PauseShutdown; if the pause count reaches zero
// and shutdown has been scheduled, it begins running now.
func (h *ShutdownHelper) ResumeShutdown() {
	h.mu.Lock()
	if h.pauseCount < 1 {
		h.mu.Unlock()
		h.Panic("ResumeShutdown before PauseShutdown")
		return
	}
	h.pauseCount--
	runNow := h.pauseCount == 0 && h.scheduled && !h.started
	if runNow {
		h.started = true
	}
	h.mu.Unlock()
	if runNow {
		h.runShutdown()
	}
}

// IsActivated reports whether Activate has succeeded.
func (h *ShutdownHelper) IsActivated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activated
}

// Activate marks the object activated. A no-op if already activated; fails
// if shutdown has already started.
func (h *ShutdownHelper) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.activated {
		return nil
	}
	if h.started {
		return h.Errorf("cannot activate; shutdown already initiated")
	}
	h.activated = true
	return nil
}

// OnceActivateHandler runs with shutdown paused to bring the object up. A
// non-nil return aborts activation and starts shutdown with that error.
type OnceActivateHandler func() error

// DoOnceActivate pauses shutdown, runs activateFn, then activates (or, on
// error, starts shutting down). If waitOnFail is true and activation
// fails, it blocks until shutdown completes before returning the error.
func (h *ShutdownHelper) DoOnceActivate(activateFn OnceActivateHandler, waitOnFail bool) error {
	h.mu.Lock()
	if h.activated {
		h.mu.Unlock()
		return nil
	}
	if h.started {
		h.mu.Unlock()
		var err error
		if waitOnFail {
			err = h.WaitShutdown()
		}
		if err == nil {
			err = h.Errorf("shutdown already started; cannot activate")
		}
		return err
	}
	h.pauseCount++
	h.mu.Unlock()

	err := activateFn()
	if err == nil {
		err = h.Activate()
	}
	if err != nil {
		h.StartShutdown(err)
	}
	h.ResumeShutdown()
	if err != nil && waitOnFail {
		h.WaitShutdown()
	}
	return err
}

// StartShutdown schedules shutdown with the given advisory completion
// error. A no-op if already scheduled. If paused, actual shutdown is
// deferred until the pause count reaches zero.
func (h *ShutdownHelper) StartShutdown(completionErr error) {
	var runNow bool
	h.mu.Lock()
	if !h.scheduled {
		h.err = completionErr
		h.scheduled = true
		runNow = h.pauseCount == 0
		h.started = runNow
	}
	h.mu.Unlock()
	if runNow {
		h.runShutdown()
	}
}

// ShutdownOnContext starts shutdown with ctx.Err() if ctx is done before
// shutdown is otherwise started. Non-blocking.
func (h *ShutdownHelper) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-h.startedChan:
		case <-ctx.Done():
			h.StartShutdown(ctx.Err())
		}
	}()
}

func (h *ShutdownHelper) IsScheduledShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scheduled
}

func (h *ShutdownHelper) IsStartedShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *ShutdownHelper) IsDoneShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// ShutdownWG exposes a WaitGroup callers can Add() to, deferring shutdown
// completion until matching Done() calls land.
func (h *ShutdownHelper) ShutdownWG() *sync.WaitGroup {
	return &h.wg
}

// ShutdownDoneChan is closed once shutdown has fully completed.
func (h *ShutdownHelper) ShutdownDoneChan() <-chan struct{} {
	return h.doneChan
}

// ShutdownHandlerDoneChan is closed once HandleOnceShutdown has returned,
// before children are waited on.
func (h *ShutdownHelper) ShutdownHandlerDoneChan() <-chan struct{} {
	return h.handlerDoneCh
}

// WaitShutdown blocks until shutdown is complete and returns its status. It
// does not itself initiate shutdown.
func (h *ShutdownHelper) WaitShutdown() error {
	<-h.doneChan
	return h.err
}

// Shutdown starts shutdown (if not already) and blocks for completion.
func (h *ShutdownHelper) Shutdown(completionErr error) error {
	h.StartShutdown(completionErr)
	return h.WaitShutdown()
}

// Close implements io.Closer by performing a synchronous shutdown with a nil
// advisory error.
func (h *ShutdownHelper) Close() error {
	return h.Shutdown(nil)
}

// AddShutdownChildChan defers shutdown completion until childDone closes.
// The caller is responsible for closing it.
func (h *ShutdownHelper) AddShutdownChildChan(childDone <-chan struct{}) {
	h.wg.Add(1)
	go func() {
		<-childDone
		h.wg.Done()
	}()
}

// AddShutdownChild registers child as owned by this helper: once
// HandleOnceShutdown returns, the child is told to shut down (with the
// handler's completion error) if it hasn't already, and shutdown does not
// complete until the child's shutdown does.
func (h *ShutdownHelper) AddShutdownChild(child Child) {
	h.wg.Add(1)
	go func() {
		select {
		case <-child.ShutdownDoneChan():
		case <-h.handlerDoneCh:
			child.StartShutdown(h.err)
			child.WaitShutdown()
		}
		h.wg.Done()
	}()
}
