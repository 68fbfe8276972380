package bridgeerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := fmt.Errorf("%w: short read on channel control", Transport)
	if !Is(err, Transport) {
		t.Error("expected Is to match a wrapped Transport error")
	}
	if Is(err, Codec) {
		t.Error("expected Is not to match an unrelated Kind")
	}
}

func TestKindsAreDistinctSentinels(t *testing.T) {
	kinds := []Kind{Transport, Codec, PluginLoad, CapabilityMiss, Lifecycle, Resource}
	for i, a := range kinds {
		for j, b := range kinds {
			if i == j {
				continue
			}
			if errors.Is(a, b) {
				t.Errorf("kind %d unexpectedly matches kind %d", i, j)
			}
		}
	}
}

func TestIsUnwrapsMultipleLayers(t *testing.T) {
	inner := fmt.Errorf("%w: mmap failed", Resource)
	outer := fmt.Errorf("mapping shared buffer: %w", inner)
	if !Is(outer, Resource) {
		t.Error("expected Is to see through multiple levels of wrapping")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("unrelated"), Transport) {
		t.Error("expected Is to return false for an error with no relation to Transport")
	}
}
