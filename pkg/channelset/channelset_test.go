package channelset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sammck-go/abibridge/internal/corelog"
)

func testLogger() corelog.Logger {
	return corelog.New("test", corelog.LevelError)
}

func TestNewEndpointDirCreatesUnderTempRoot(t *testing.T) {
	root := t.TempDir()
	dir, err := NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	if fi, statErr := os.Stat(dir.Path); statErr != nil || !fi.IsDir() {
		t.Fatalf("expected %s to be an existing directory", dir.Path)
	}
	if filepath.Dir(dir.Path) != root {
		t.Errorf("got parent %q, expected %q", filepath.Dir(dir.Path), root)
	}
}

func TestNewEndpointDirNamesAreUnique(t *testing.T) {
	root := t.TempDir()
	a, err := NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	b, err := NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	if a.Path == b.Path {
		t.Errorf("expected distinct endpoint directories, both were %q", a.Path)
	}
}

func TestEndpointDirRemove(t *testing.T) {
	root := t.TempDir()
	dir, err := NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	if err := dir.Remove(); err != nil {
		t.Fatalf("Remove returned error: %s", err)
	}
	if _, err := os.Stat(dir.Path); !os.IsNotExist(err) {
		t.Errorf("expected endpoint directory to be gone, stat error: %v", err)
	}
}

func TestEndpointDirRemoveRefusesOutsideTempRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	dir := &EndpointDir{tempRoot: root, Path: outside}
	if err := dir.Remove(); err == nil {
		t.Fatal("expected Remove to refuse a path outside its temp root")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("expected the outside directory to survive, stat error: %v", err)
	}
}

func TestOpenEndpointDirDoesNotCreate(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "never-created")
	dir := OpenEndpointDir(path)
	if dir.Path != path {
		t.Errorf("got Path=%q, expected %q", dir.Path, path)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("OpenEndpointDir should not create the directory")
	}
}

func TestChannelPathAndAudioThreadChannelName(t *testing.T) {
	dir := &EndpointDir{tempRoot: "/tmp", Path: "/tmp/ep"}
	if got, want := dir.ChannelPath("control"), "/tmp/ep/control.sock"; got != want {
		t.Errorf("got ChannelPath=%q, expected %q", got, want)
	}
	if got, want := AudioThreadChannelName(7), "host_plugin_audio_thread_7"; got != want {
		t.Errorf("got AudioThreadChannelName=%q, expected %q", got, want)
	}
}

type nopCloser struct {
	closed *bool
}

func (c nopCloser) Close() error {
	*c.closed = true
	return nil
}

func TestSetRegisterReplacesAndClosesPrevious(t *testing.T) {
	root := t.TempDir()
	dir, err := NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	set := NewSet(testLogger(), dir)

	var firstClosed bool
	set.Register("control", nopCloser{&firstClosed})

	var secondClosed bool
	set.Register("control", nopCloser{&secondClosed})

	if !firstClosed {
		t.Error("expected the replaced channel to be closed")
	}
	if secondClosed {
		t.Error("did not expect the new channel to be closed yet")
	}
}

func TestSetAudioThreadLifecycle(t *testing.T) {
	root := t.TempDir()
	dir, err := NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	set := NewSet(testLogger(), dir)

	if set.HasAudioThread(1) {
		t.Fatal("expected no audio thread channel before AddAudioThread")
	}

	var closed bool
	set.AddAudioThread(1, nopCloser{&closed})
	if !set.HasAudioThread(1) {
		t.Error("expected HasAudioThread to report true after AddAudioThread")
	}

	if err := set.RemoveAudioThread(1); err != nil {
		t.Fatalf("RemoveAudioThread returned error: %s", err)
	}
	if !closed {
		t.Error("expected RemoveAudioThread to close the channel")
	}
	if set.HasAudioThread(1) {
		t.Error("expected HasAudioThread to report false after RemoveAudioThread")
	}
}

func TestSetCloseIsIdempotentAndClosesEverything(t *testing.T) {
	root := t.TempDir()
	dir, err := NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	set := NewSet(testLogger(), dir)

	var aClosed, bClosed bool
	set.Register("control", nopCloser{&aClosed})
	set.Register("callback", nopCloser{&bClosed})

	if err := set.Close(); err != nil {
		t.Fatalf("Close returned error: %s", err)
	}
	if !aClosed || !bClosed {
		t.Error("expected Close to close every registered channel")
	}
	if err := set.Close(); err != nil {
		t.Errorf("second Close returned error: %s", err)
	}

	var lateClosed bool
	set.Register("late", nopCloser{&lateClosed})
	if !lateClosed {
		t.Error("expected a channel registered after Close to be closed immediately")
	}
}
