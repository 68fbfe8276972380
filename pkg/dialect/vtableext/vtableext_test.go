package vtableext

import (
	"testing"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/typedmsg"
)

func testLogger() corelog.Logger {
	return corelog.New("test", corelog.LevelError)
}

func newChannelPair(t *testing.T) (native, foreign *Channels) {
	t.Helper()
	root := t.TempDir()
	dir, err := channelset.NewEndpointDir(root, "abibridge", "plugin")
	if err != nil {
		t.Fatalf("NewEndpointDir returned error: %s", err)
	}

	nativeCh := make(chan *Channels, 1)
	nativeErr := make(chan error, 1)
	go func() {
		ch, err := Listen(testLogger(), dir)
		nativeCh <- ch
		nativeErr <- err
	}()

	time.Sleep(50 * time.Millisecond)

	foreignChannels, err := Dial(testLogger(), dir)
	if err != nil {
		t.Fatalf("Dial returned error: %s", err)
	}
	nativeChannels := <-nativeCh
	if err := <-nativeErr; err != nil {
		t.Fatalf("Listen returned error: %s", err)
	}

	return nativeChannels, foreignChannels
}

func serveExtensions(foreign *Channels, extensionCalls *int) {
	go foreign.Control.ReceiveMessages(func(req typedmsg.TaggedRequest) (typedmsg.TaggedResponse, error) {
		switch in := req.(type) {
		case *MainCallRequest:
			return &MainCallResponse{ResultCode: int32(in.MethodID)}, nil
		case *GetExtensionsRequest:
			return &GetExtensionsResponse{ExtensionIDs: []string{"midi-mapping", "note-expression"}}, nil
		case *ExtensionCallRequest:
			if extensionCalls != nil {
				*extensionCalls++
			}
			return &ExtensionCallResponse{ResultCode: 0, Args: in.Args}, nil
		}
		return nil, nil
	})
}

func TestCallInvokesMainVTable(t *testing.T) {
	native, foreign := newChannelPair(t)
	defer native.Close()
	defer foreign.Close()
	serveExtensions(foreign, nil)

	proxy := NewProxy(1, native)
	code, _, err := proxy.Call(5, nil)
	if err != nil {
		t.Fatalf("Call returned error: %s", err)
	}
	if code != 5 {
		t.Errorf("got ResultCode=%d, expected 5", code)
	}
}

func TestSupportsExtensionCachesAfterFirstLoad(t *testing.T) {
	native, foreign := newChannelPair(t)
	defer native.Close()
	defer foreign.Close()

	queries := 0
	go foreign.Control.ReceiveMessages(func(req typedmsg.TaggedRequest) (typedmsg.TaggedResponse, error) {
		if _, ok := req.(*GetExtensionsRequest); ok {
			queries++
			return &GetExtensionsResponse{ExtensionIDs: []string{"midi-mapping"}}, nil
		}
		return nil, nil
	})

	proxy := NewProxy(1, native)
	ok, err := proxy.SupportsExtension("midi-mapping")
	if err != nil {
		t.Fatalf("SupportsExtension returned error: %s", err)
	}
	if !ok {
		t.Fatal("expected midi-mapping to be supported")
	}

	ok, err = proxy.SupportsExtension("unknown-extension")
	if err != nil {
		t.Fatalf("SupportsExtension returned error: %s", err)
	}
	if ok {
		t.Error("expected unknown-extension to be unsupported")
	}

	if queries != 1 {
		t.Errorf("got %d GetExtensions queries, expected exactly 1 due to caching", queries)
	}
}

func TestInvalidateExtensionsForcesReload(t *testing.T) {
	native, foreign := newChannelPair(t)
	defer native.Close()
	defer foreign.Close()

	queries := 0
	go foreign.Control.ReceiveMessages(func(req typedmsg.TaggedRequest) (typedmsg.TaggedResponse, error) {
		if _, ok := req.(*GetExtensionsRequest); ok {
			queries++
			return &GetExtensionsResponse{ExtensionIDs: []string{"midi-mapping"}}, nil
		}
		return nil, nil
	})

	proxy := NewProxy(1, native)
	if _, err := proxy.SupportsExtension("midi-mapping"); err != nil {
		t.Fatalf("SupportsExtension returned error: %s", err)
	}
	proxy.InvalidateExtensions()
	if _, err := proxy.SupportsExtension("midi-mapping"); err != nil {
		t.Fatalf("SupportsExtension returned error: %s", err)
	}

	if queries != 2 {
		t.Errorf("got %d GetExtensions queries, expected 2 after InvalidateExtensions forced a reload", queries)
	}
}

func TestCallExtensionRejectsUnsupportedLocally(t *testing.T) {
	native, foreign := newChannelPair(t)
	defer native.Close()
	defer foreign.Close()

	calls := 0
	serveExtensions(foreign, &calls)

	proxy := NewProxy(1, native)
	_, _, err := proxy.CallExtension("no-such-extension", 1, nil)
	if err == nil {
		t.Fatal("expected an error calling an unsupported extension")
	}
	if calls != 0 {
		t.Errorf("expected no round trip for an unsupported extension, got %d calls", calls)
	}

	code, out, err := proxy.CallExtension("midi-mapping", 1, []byte("payload"))
	if err != nil {
		t.Fatalf("CallExtension returned error: %s", err)
	}
	if code != 0 || string(out) != "payload" {
		t.Errorf("got code=%d out=%q, expected code=0 out=%q", code, out, "payload")
	}
	if calls != 1 {
		t.Errorf("got %d extension calls, expected 1", calls)
	}
}
