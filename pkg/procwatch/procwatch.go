// Package procwatch implements the watchdog threads from spec §4.9/§5: the
// native side polls worker liveness until the first successful socket
// connect, and the foreign-side worker polls its parent's liveness for as
// long as it runs, tearing itself down if the parent is gone.
package procwatch

import (
	"os"
	"time"
)

// ParentLivenessFD is the file descriptor a spawned foreign worker expects
// its end of a parent-liveness socketpair on, when the native side provided
// one (see pkg/worker). It is the first entry of exec.Cmd.ExtraFiles, which
// Go places at fd 3 in the child.
const ParentLivenessFD = 3

// DisableEnvVar, when set to "1", disables the parent-pid watchdog --
// needed for namespaced setups where /proc does not reflect the real
// parent, per spec §6.
const DisableEnvVar = "ABIBRIDGE_NO_WATCHDOG"

// DefaultPollInterval is how often liveness is re-checked.
const DefaultPollInterval = 500 * time.Millisecond

// Disabled reports whether the watchdog has been disabled via the
// environment.
func Disabled() bool {
	return os.Getenv(DisableEnvVar) == "1"
}

// Alive reports whether a process with the given pid currently exists.
func Alive(pid int) bool {
	return processExists(pid)
}

// WatchParent polls the parent pid every interval until it is no longer
// alive or stop is closed, then calls onGone exactly once (unless stop
// fired first). It is a no-op if the watchdog is disabled via the
// environment. Meant to be run in its own goroutine on the foreign side.
func WatchParent(parentPID int, interval time.Duration, stop <-chan struct{}, onGone func()) {
	if Disabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !Alive(parentPID) {
				onGone()
				return
			}
		}
	}
}

// WatchParentPipe blocks reading from fd (expected to be the worker's end
// of a socketpair whose other end the native side keeps open for exactly
// as long as it lives) and calls onGone as soon as a read returns, which
// happens the instant the whole parent process -- including a hard kill --
// exits and the kernel closes its end. This complements WatchParent's
// periodic /proc poll with an immediate signal instead of waiting up to one
// poll interval. A no-op if the watchdog is disabled via the environment.
func WatchParentPipe(fd int, onGone func()) {
	if Disabled() {
		return
	}
	f := os.NewFile(uintptr(fd), "parent-liveness")
	if f == nil {
		return
	}
	go func() {
		defer f.Close()
		var buf [1]byte
		f.Read(buf[:])
		onGone()
	}()
}

// WatchWorkerConnect blocks on wait (run in its own goroutine) and calls
// onExited(exitErr) if the worker exits before stop fires.
// wait should be a function that blocks until the worker process exits and
// returns its wait error (typically (*os.Process).Wait wrapped to return
// an error). Meant to be run on the native side between spawning the
// worker and the sockets connecting.
func WatchWorkerConnect(wait func() error, stop <-chan struct{}, onExited func(error)) {
	done := make(chan error, 1)
	go func() {
		done <- wait()
	}()
	select {
	case <-stop:
	case err := <-done:
		onExited(err)
	}
}
