package handshake

import (
	"testing"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/config"
)

func testLogger() corelog.Logger {
	return corelog.New("test", corelog.LevelError)
}

func TestListenDialRoundTrip(t *testing.T) {
	root := t.TempDir()
	dir, err := channelset.NewEndpointDir(root, "abibridge", "synth")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}
	serverSet := channelset.NewSet(testLogger(), dir)
	clientSet := channelset.NewSet(testLogger(), dir)

	opts := config.Default()
	opts.FrameRate = 45

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- Listen(testLogger(), serverSet, opts)
	}()

	time.Sleep(50 * time.Millisecond)

	reply, err := Dial(testLogger(), clientSet)
	if err != nil {
		t.Fatalf("Dial returned error: %s", err)
	}
	if reply.Options.FrameRate != 45 {
		t.Errorf("got FrameRate=%d, expected 45", reply.Options.FrameRate)
	}
	if reply.VersionMismatch {
		t.Error("expected no version mismatch between Dial and Listen using the same ProtocolVersion")
	}

	select {
	case err := <-listenErr:
		if err != nil {
			t.Errorf("Listen returned error: %s", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not complete after Dial finished the handshake")
	}
}
