// Package rlimit implements the §7 resource-warning checks: low
// RLIMIT_MEMLOCK or RLIMIT_RTTIME are surfaced as startup notifications but
// do not fail initialization.
package rlimit

import "golang.org/x/sys/unix"

// Warning describes one resource limit that is set low enough to be worth
// surfacing to the user at startup.
type Warning struct {
	Name    string
	Current uint64
	Hint    string
}

// recommendedMemlockBytes is the minimum RLIMIT_MEMLOCK (bytes) below which we
// warn that shared-memory audio buffers or realtime thread stacks may fail
// to lock into RAM.
const recommendedMemlockBytes = 64 * 1024 * 1024

// recommendedRTTimeMicros is the minimum RLIMIT_RTTIME (microseconds)
// below which a realtime-priority audio thread risks being killed by the
// kernel's RT throttling for running too long without yielding.
const recommendedRTTimeMicros = 200000

// CheckAll inspects RLIMIT_MEMLOCK and RLIMIT_RTTIME and returns a Warning
// for each one found below its recommended threshold. An unlimited (Inf)
// limit never warns.
func CheckAll() []Warning {
	var warnings []Warning
	if w, ok := checkMemlock(); ok {
		warnings = append(warnings, w)
	}
	if w, ok := checkRTTime(); ok {
		warnings = append(warnings, w)
	}
	return warnings
}

func checkMemlock() (Warning, bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rl); err != nil {
		return Warning{}, false
	}
	if rl.Cur == unix.RLIM_INFINITY || rl.Cur >= recommendedMemlockBytes {
		return Warning{}, false
	}
	return Warning{
		Name:    "RLIMIT_MEMLOCK",
		Current: rl.Cur,
		Hint:    "low RLIMIT_MEMLOCK may prevent the shared audio buffer from being locked into RAM; consider raising it in limits.conf",
	}, true
}

func checkRTTime() (Warning, bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_RTTIME, &rl); err != nil {
		return Warning{}, false
	}
	if rl.Cur == unix.RLIM_INFINITY || rl.Cur >= recommendedRTTimeMicros {
		return Warning{}, false
	}
	return Warning{
		Name:    "RLIMIT_RTTIME",
		Current: rl.Cur,
		Hint:    "low RLIMIT_RTTIME may cause the kernel to kill the realtime audio thread under sustained load; consider raising it",
	}, true
}
