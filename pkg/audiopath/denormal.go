package audiopath

// denormalHook abstracts the hardware flush-to-zero/denormals-are-zero
// control bits (MXCSR on x86, FPSCR on arm) behind a pluggable pair of
// functions so the scoped guard below has somewhere real to call without
// this module committing to inline assembly for every architecture it
// might run on. A platform build can install Enable/Restore at init time;
// left unset, the guard degrades to a no-op rather than silently doing the
// wrong thing on an architecture nobody has wired up yet.
var denormalHook = struct {
	// Enable turns on flush-to-zero and returns an opaque previous-state
	// token to pass to Restore.
	Enable func() uint32
	// Restore reinstates the control-register state captured by Enable.
	Restore func(prev uint32)
}{
	Enable:  func() uint32 { return 0 },
	Restore: func(uint32) {},
}

// SetDenormalHook installs the platform-specific enable/restore pair. Call
// this once at process startup from platform-specific init code; the
// default is a harmless no-op.
func SetDenormalHook(enable func() uint32, restore func(uint32)) {
	if enable == nil || restore == nil {
		return
	}
	denormalHook.Enable = enable
	denormalHook.Restore = restore
}

// WithDenormalsFlushed runs fn with denormal flush-to-zero enabled for the
// calling goroutine's OS thread, restoring the previous state on any exit
// path including a panic, per spec §4.6's scoped denormal-flush guard.
// Callers on the audio thread must have called runtime.LockOSThread so the
// control-register state actually follows fn's execution.
func WithDenormalsFlushed(fn func()) {
	prev := denormalHook.Enable()
	defer denormalHook.Restore(prev)
	fn()
}
