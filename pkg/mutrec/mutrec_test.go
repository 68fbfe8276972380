package mutrec

import (
	"errors"
	"testing"
	"time"
)

func TestForkReturnsValueAndError(t *testing.T) {
	h := New()
	v, err := h.Fork(func() (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Fork returned error: %s", err)
	}
	if v != 42 {
		t.Errorf("got %v, expected 42", v)
	}

	wantErr := errors.New("boom")
	_, err = h.Fork(func() (interface{}, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Errorf("got error %v, expected %v", err, wantErr)
	}
}

func TestHandleRunsOnForkingGoroutineWhileForkIsActive(t *testing.T) {
	h := New()
	forkGoroutine := make(chan struct{}, 1)
	handleGoroutine := make(chan struct{}, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.Fork(func() (interface{}, error) {
			forkGoroutine <- struct{}{}
			h.Handle(func() {
				handleGoroutine <- struct{}{}
			})
			return nil, nil
		})
	}()

	select {
	case <-forkGoroutine:
	case <-time.After(time.Second):
		t.Fatal("Fork's fn never ran")
	}

	select {
	case <-handleGoroutine:
	case <-time.After(time.Second):
		t.Fatal("Handle's callback never ran while Fork was active")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Fork never completed")
	}
}

func TestHandleRunsDirectlyWithNoActiveFork(t *testing.T) {
	h := New()
	ran := false
	h.Handle(func() { ran = true })
	if !ran {
		t.Error("expected Handle to run fn directly when no Fork is active")
	}
}

func TestSecondForkWaitsForFirstToComplete(t *testing.T) {
	h := New()
	release := make(chan struct{})
	firstStarted := make(chan struct{})

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		h.Fork(func() (interface{}, error) {
			close(firstStarted)
			<-release
			return nil, nil
		})
	}()

	<-firstStarted

	secondStarted := make(chan struct{})
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		h.Fork(func() (interface{}, error) {
			close(secondStarted)
			return nil, nil
		})
	}()

	select {
	case <-secondStarted:
		t.Fatal("second Fork started before the first completed")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	<-firstDone

	select {
	case <-secondStarted:
	case <-time.After(time.Second):
		t.Fatal("second Fork never started after the first completed")
	}
	<-secondDone
}
