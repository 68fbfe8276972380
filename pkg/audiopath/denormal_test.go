package audiopath

import "testing"

func TestWithDenormalsFlushedDefaultIsNoop(t *testing.T) {
	ran := false
	WithDenormalsFlushed(func() { ran = true })
	if !ran {
		t.Error("expected fn to run under the default no-op hook")
	}
}

func TestSetDenormalHookWrapsFn(t *testing.T) {
	var enabled, restored bool
	SetDenormalHook(
		func() uint32 {
			enabled = true
			return 99
		},
		func(prev uint32) {
			if prev != 99 {
				t.Errorf("got prev=%d, expected 99", prev)
			}
			restored = true
		},
	)
	defer SetDenormalHook(func() uint32 { return 0 }, func(uint32) {})

	WithDenormalsFlushed(func() {})
	if !enabled || !restored {
		t.Error("expected both Enable and Restore to run around fn")
	}
}

func TestSetDenormalHookIgnoresNilArguments(t *testing.T) {
	SetDenormalHook(nil, nil)
	ran := false
	WithDenormalsFlushed(func() { ran = true })
	if !ran {
		t.Error("expected WithDenormalsFlushed to still run fn when SetDenormalHook(nil, nil) is a no-op")
	}
}
