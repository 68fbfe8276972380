// Package maincontext implements the foreign-side main context from spec
// §4.8: a single-threaded cooperative scheduler tied to the foreign-side
// OS message pump. Every call the foreign plugin might make that is not
// thread-safe is routed through RunInContext so it executes on this
// goroutine alongside the UI pump ticks.
package maincontext

import (
	"fmt"
	"sync"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
)

// Handle lets the caller of RunInContext wait for the posted function's
// result.
type Handle struct {
	done   chan struct{}
	result interface{}
	err    error
}

// Wait blocks until the posted function has run and returns its result.
func (h *Handle) Wait() (interface{}, error) {
	<-h.done
	return h.result, h.err
}

// Context is the foreign-side main-thread scheduler.
type Context struct {
	logger corelog.Logger
	taskCh chan func()

	mu          sync.Mutex
	baseInterval time.Duration
	perInstance  map[string]time.Duration
	interval     time.Duration

	pumpFn  func()
	allowFn func() bool

	resetCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Context with the given default UI pump interval (spec
// §4.10's frame_rate option, expressed as a period rather than an fps).
func New(logger corelog.Logger, defaultInterval time.Duration) *Context {
	return &Context{
		logger:       logger,
		taskCh:       make(chan func(), 64),
		baseInterval: defaultInterval,
		perInstance:  make(map[string]time.Duration),
		interval:     defaultInterval,
		resetCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// RunInContext posts fn to run on the context's goroutine and returns a
// Handle for its eventual result. If the context has already been Stop'd,
// the handle resolves immediately with an error.
func (c *Context) RunInContext(fn func() (interface{}, error)) *Handle {
	h := &Handle{done: make(chan struct{})}
	task := func() {
		h.result, h.err = fn()
		close(h.done)
	}
	select {
	case c.taskCh <- task:
	case <-c.stopCh:
		h.err = fmt.Errorf("maincontext: context stopped")
		close(h.done)
	}
	return h
}

// AsyncHandleEvents installs the pump/allow callbacks used by the run loop.
// Call this before Run. pumpFn is invoked on the context goroutine each
// tick iff allowFn returns true.
func (c *Context) AsyncHandleEvents(pumpFn func(), allowFn func() bool) {
	c.pumpFn = pumpFn
	c.allowFn = allowFn
}

// UpdateTimerInterval narrows the pump interval on behalf of instanceKey.
// The context keeps the minimum interval across the base default and every
// instance's request, per spec §4.8.
func (c *Context) UpdateTimerInterval(instanceKey string, newInterval time.Duration) {
	c.mu.Lock()
	c.perInstance[instanceKey] = newInterval
	c.interval = c.minIntervalLocked()
	c.mu.Unlock()

	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

// ClearTimerInterval removes instanceKey's narrowed interval, e.g. on
// instance destruction.
func (c *Context) ClearTimerInterval(instanceKey string) {
	c.mu.Lock()
	delete(c.perInstance, instanceKey)
	c.interval = c.minIntervalLocked()
	c.mu.Unlock()

	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

func (c *Context) minIntervalLocked() time.Duration {
	min := c.baseInterval
	for _, v := range c.perInstance {
		if v < min {
			min = v
		}
	}
	return min
}

func (c *Context) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Run executes the scheduler loop until Stop is called. It should be run
// on the goroutine that owns the foreign-side UI message pump.
func (c *Context) Run() {
	timer := time.NewTimer(c.currentInterval())
	defer timer.Stop()
	for {
		select {
		case t := <-c.taskCh:
			t()
		case <-timer.C:
			if c.allowFn != nil && c.allowFn() && c.pumpFn != nil {
				c.pumpFn()
			}
			timer.Reset(c.currentInterval())
		case <-c.resetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.currentInterval())
		case <-c.stopCh:
			close(c.doneCh)
			return
		}
	}
}

// Stop drains the pump and exits the run loop, blocking until Run returns.
// Idempotent.
func (c *Context) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.doneCh
}
