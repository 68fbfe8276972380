package rlimit

import "testing"

func TestCheckAllReturnsOnlyKnownLimits(t *testing.T) {
	warnings := CheckAll()
	for _, w := range warnings {
		if w.Name != "RLIMIT_MEMLOCK" && w.Name != "RLIMIT_RTTIME" {
			t.Errorf("unexpected warning name %q", w.Name)
		}
		if w.Hint == "" {
			t.Errorf("warning %q has no hint", w.Name)
		}
	}
}

func TestThresholdsArePositive(t *testing.T) {
	if recommendedMemlockBytes <= 0 {
		t.Error("recommendedMemlockBytes should be positive")
	}
	if recommendedRTTimeMicros <= 0 {
		t.Error("recommendedRTTimeMicros should be positive")
	}
}
