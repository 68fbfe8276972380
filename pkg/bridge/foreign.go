package bridge

import (
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/internal/lifecycle"
	"github.com/sammck-go/abibridge/pkg/audiopath"
	"github.com/sammck-go/abibridge/pkg/config"
	"github.com/sammck-go/abibridge/pkg/maincontext"
	"github.com/sammck-go/abibridge/pkg/procwatch"
	"github.com/sammck-go/abibridge/pkg/registry"
)

// ForeignCore is the foreign-side composition for one worker process: the
// single-threaded main context every non-thread-safe plugin call is routed
// through, the proxy registry dialect adapters populate as instances are
// created, and the parent-liveness watchdogs that trigger shutdown when the
// native host goes away.
type ForeignCore struct {
	lifecycle.ShutdownHelper

	Logger      corelog.Logger
	MainContext *maincontext.Context
	Registry    *registry.Registry

	parentPID int
	pumpFn    func()
}

// NewForeignCore starts the main context and arms both the /proc-poll and
// socketpair-based parent watchdogs for parentPID. livenessFD is the fd
// inherited from the native side (procwatch.ParentLivenessFD) or -1 if none
// was passed (e.g. when ABIBRIDGE_NO_WATCHDOG disables it upstream).
func NewForeignCore(logger corelog.Logger, opts config.Options, parentPID, livenessFD int) *ForeignCore {
	interval := time.Second / time.Duration(opts.FrameRate)
	fc := &ForeignCore{
		Logger:      logger,
		MainContext: maincontext.New(logger.Fork("maincontext"), interval),
		Registry:    registry.New(),
		parentPID:   parentPID,
	}
	fc.ShutdownHelper.Init(logger, fc)

	// Inhibit the UI pump while any instance is mid construction or
	// teardown (spec §4.8/§9): the allow_fn is the negation of
	// AnyInitializingOrTerminating, consulted once per tick against this
	// same Registry that CreateInstance/DestroyInstance drive as instances
	// come and go.
	fc.MainContext.AsyncHandleEvents(fc.pumpUI, func() bool {
		return !fc.Registry.AnyInitializingOrTerminating()
	})

	go fc.MainContext.Run()

	stop := fc.ShutdownHelper.ShutdownDoneChan()
	go procwatch.WatchParent(parentPID, procwatch.DefaultPollInterval, stop, func() {
		logger.WLogf("parent process %d is gone (poll), shutting down", parentPID)
		fc.StartShutdown(nil)
	})
	if livenessFD >= 0 {
		procwatch.WatchParentPipe(livenessFD, func() {
			logger.WLogf("parent liveness pipe closed, shutting down")
			fc.StartShutdown(nil)
		})
	}

	return fc
}

// SetPumpFn installs the function MainContext's timer calls on every tick
// it is allowed to run (i.e. when AnyInitializingOrTerminating is false).
// Dialects that need periodic UI/editor servicing call this once during
// setup; nil (the default) makes every tick a no-op.
func (fc *ForeignCore) SetPumpFn(fn func()) {
	fc.pumpFn = fn
}

func (fc *ForeignCore) pumpUI() {
	if fc.pumpFn != nil {
		fc.pumpFn()
	}
}

// HandleOnceShutdown implements lifecycle.OnceShutdownHandler: it stops the
// main context so its goroutine and ticker exit. Any instance children
// registered via AddShutdownChild (see ForeignInstanceChild) are told to
// shut down after this returns, per internal/lifecycle's contract.
func (fc *ForeignCore) HandleOnceShutdown(completionErr error) error {
	fc.MainContext.Stop()
	return completionErr
}

// ForeignInstanceChild adapts one instance's live audio-thread channel into
// a lifecycle.Child, so ForeignCore.AddShutdownChild can hold overall
// shutdown open until every instance's channel has actually closed instead
// of only stopping the main context and declaring victory.
type ForeignInstanceChild struct {
	lifecycle.ShutdownHelper
	ch *audiopath.ForeignChannel
}

// NewForeignInstanceChild wraps ch for registration via AddShutdownChild.
func NewForeignInstanceChild(logger corelog.Logger, ch *audiopath.ForeignChannel) *ForeignInstanceChild {
	c := &ForeignInstanceChild{ch: ch}
	c.ShutdownHelper.Init(logger, c)
	return c
}

// HandleOnceShutdown implements lifecycle.OnceShutdownHandler by closing
// the wrapped channel, which unblocks its Serve goroutine.
func (c *ForeignInstanceChild) HandleOnceShutdown(completionErr error) error {
	if err := c.ch.Close(); err != nil && completionErr == nil {
		completionErr = err
	}
	return completionErr
}
