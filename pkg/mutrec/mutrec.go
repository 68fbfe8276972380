// Package mutrec implements the mutual-recursion helper from spec §4.7: it
// lets a request sent from goroutine G be answered by dispatching inbound
// requests back onto G until the original response arrives, which is
// required because some protocol calls are legitimately re-entrant across
// the boundary and must be serviced on the originating goroutine (the
// dialect's "UI thread", in Go terms the goroutine that called Fork).
package mutrec

import (
	"fmt"
	"sync"
)

// Helper holds at most one active "fork" at a time. A second Fork call
// while one is in flight blocks until the first completes -- forks are
// serialized, never nested, per spec §4.7.
type Helper struct {
	mu      sync.Mutex
	cond    *sync.Cond
	active  bool
	taskCh  chan func()
}

// New returns a ready-to-use Helper.
func New() *Helper {
	h := &Helper{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Fork installs a private task scheduler, runs fn on a new goroutine (whose
// first act should be the outbound call that may provoke re-entry), and
// services tasks posted by Handle on the calling goroutine until fn
// returns. The calling goroutine is therefore the one that executes any
// Handle callback posted while fn is in flight.
func (h *Helper) Fork(fn func() (interface{}, error)) (interface{}, error) {
	h.mu.Lock()
	for h.active {
		h.cond.Wait()
	}
	h.active = true
	taskCh := make(chan func(), 16)
	h.taskCh = taskCh
	h.mu.Unlock()

	type outcome struct {
		value interface{}
		err   error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		v, err := fn()
		resultCh <- outcome{v, err}
	}()

	var result outcome
loop:
	for {
		select {
		case t := <-taskCh:
			t()
		case result = <-resultCh:
			break loop
		}
	}
	// Drain any tasks that were queued right before fn returned, without
	// blocking for new ones: the protocol only re-enters while the
	// original outbound call is still pending.
	for {
		select {
		case t := <-taskCh:
			t()
		default:
			goto done
		}
	}
done:

	h.mu.Lock()
	h.active = false
	h.taskCh = nil
	h.mu.Unlock()
	h.cond.Broadcast()

	return result.value, result.err
}

// Handle runs fn on the goroutine currently inside Fork, if one is active,
// and blocks until it completes. If no Fork is active, fn runs directly on
// the calling goroutine.
func (h *Helper) Handle(fn func()) {
	h.mu.Lock()
	ch := h.taskCh
	h.mu.Unlock()

	if ch == nil {
		fn()
		return
	}

	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case ch <- task:
		<-done
	default:
		panic(fmt.Sprintf("mutrec: task queue full (more than %d concurrent re-entrant calls)", cap(ch)))
	}
}
