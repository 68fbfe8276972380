package simplec

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
	dir, err := channelset.NewEndpointDir(root, "abibridge", "synth")
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

func TestProxyDispatchRoundTrip(t *testing.T) {
	native, foreign := newChannelPair(t)
	defer native.Close()
	defer foreign.Close()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- foreign.Dispatch.ReceiveMessages(func(req typedmsg.TaggedRequest) (typedmsg.TaggedResponse, error) {
			in := req.(*DispatchRequest)
			return &DispatchResponse{Result: int64(in.Opcode) * 2}, nil
		})
	}()

	proxy := NewProxy(1, native)
	result, _, err := proxy.Dispatch(OpcodeSetBlockSize, 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("Dispatch returned error: %s", err)
	}
	if result != int64(OpcodeSetBlockSize)*2 {
		t.Errorf("got result=%d, expected %d", result, int64(OpcodeSetBlockSize)*2)
	}

	foreign.Dispatch.Close()
	select {
	case <-serveDone:
	case <-time.After(time.Second):
		t.Fatal("ReceiveMessages did not return after Close")
	}
}

func TestProxyGetSetParameter(t *testing.T) {
	native, foreign := newChannelPair(t)
	defer native.Close()
	defer foreign.Close()

	var stored float32
	go foreign.Parameters.ReceiveMessages(func(req typedmsg.TaggedRequest) (typedmsg.TaggedResponse, error) {
		switch in := req.(type) {
		case *SetParameterRequest:
			stored = in.Value
			return &SetParameterResponse{}, nil
		case *GetParameterRequest:
			return &GetParameterResponse{Value: stored}, nil
		}
		return nil, nil
	})

	proxy := NewProxy(1, native)
	if err := proxy.SetParameter(3, 0.75); err != nil {
		t.Fatalf("SetParameter returned error: %s", err)
	}
	got, err := proxy.GetParameter(3)
	if err != nil {
		t.Fatalf("GetParameter returned error: %s", err)
	}
	if got != 0.75 {
		t.Errorf("got %v, expected 0.75", got)
	}
}
