package registry

import (
	"sync"
	"testing"
)

func TestRegisterGetUnregister(t *testing.T) {
	r := New()
	id := r.Register("proxy-a")

	entry, release, ok := r.Get(id)
	if !ok {
		t.Fatal("expected Get to find the just-registered entry")
	}
	if entry.Object != "proxy-a" {
		t.Errorf("got Object %v, expected %q", entry.Object, "proxy-a")
	}
	if entry.State != StateInitializing {
		t.Errorf("got State %v, expected StateInitializing", entry.State)
	}
	release()

	r.Unregister(id)
	if _, _, ok := r.Get(id); ok {
		t.Error("expected Get to fail after Unregister")
	}
}

func TestInstanceIDsAreUnique(t *testing.T) {
	r := New()
	seen := make(map[InstanceID]bool)
	for i := 0; i < 100; i++ {
		id := r.Register(i)
		if seen[id] {
			t.Fatalf("instance id %d issued twice", id)
		}
		seen[id] = true
	}
	if r.Len() != 100 {
		t.Errorf("got Len()=%d, expected 100", r.Len())
	}
}

func TestSetStateUnknownID(t *testing.T) {
	r := New()
	if err := r.SetState(InstanceID(999), StateActive); err == nil {
		t.Error("expected an error setting state on an unregistered id")
	}
}

func TestAnyInitializingOrTerminating(t *testing.T) {
	r := New()
	id := r.Register(nil)

	if !r.AnyInitializingOrTerminating() {
		t.Error("freshly registered instance should be initializing")
	}

	if err := r.SetState(id, StateActive); err != nil {
		t.Fatalf("SetState returned error: %s", err)
	}
	if r.AnyInitializingOrTerminating() {
		t.Error("expected no instance to be initializing/terminating once active")
	}

	if err := r.SetState(id, StateTerminating); err != nil {
		t.Fatalf("SetState returned error: %s", err)
	}
	if !r.AnyInitializingOrTerminating() {
		t.Error("expected AnyInitializingOrTerminating once an instance is terminating")
	}
}

func TestConcurrentRegisterProducesNoDuplicates(t *testing.T) {
	r := New()
	const n = 200
	ids := make([]InstanceID, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Register(i)
		}(i)
	}
	wg.Wait()

	seen := make(map[InstanceID]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("instance id %d issued more than once under concurrent Register", id)
		}
		seen[id] = true
	}
}
