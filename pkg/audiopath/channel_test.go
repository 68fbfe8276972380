package audiopath

import (
	"net"
	"testing"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/shm"
	"github.com/sammck-go/abibridge/pkg/socket"
)

func testLogger() corelog.Logger {
	return corelog.New("test", corelog.LevelError)
}

func testLayout() shm.BusLayout {
	return shm.BusLayout{
		InputChannels:  []int{2},
		OutputChannels: []int{2},
		BlockSize:      4,
		Format:         shm.Float32,
	}
}

func TestProcessRoundTrip(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout()

	nativeBuf, err := shm.Create(dir, "instance-1", layout)
	if err != nil {
		t.Fatalf("shm.Create returned error: %s", err)
	}
	defer nativeBuf.Close()
	defer nativeBuf.Unlink()

	foreignBuf, err := shm.Open(dir, "instance-1", layout)
	if err != nil {
		t.Fatalf("shm.Open returned error: %s", err)
	}
	defer foreignBuf.Close()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	native := NewNativeChannel(testLogger(), socket.New(testLogger(), a), nativeBuf)
	defer native.Close()

	foreign := NewForeignChannel(testLogger(), socket.New(testLogger(), b), foreignBuf, func(req *ProcessRequest, buf *shm.Buffer) (*ProcessResponse, error) {
		in := native.buf.InputPlane(0, 0)
		out := buf.OutputPlane(0, 0)
		copy(out, in)
		return &ProcessResponse{ConstantMaskOutputs: 0xFF}, nil
	})
	defer foreign.Close()

	copy(nativeBuf.InputPlane(0, 0), []byte{1, 2, 3, 4})

	serveDone := make(chan error, 1)
	go func() { serveDone <- foreign.Serve() }()

	resp, err := native.Process(&ProcessRequest{InstanceID: 1, FrameCount: 1})
	if err != nil {
		t.Fatalf("Process returned error: %s", err)
	}
	if resp.ConstantMaskOutputs != 0xFF {
		t.Errorf("got ConstantMaskOutputs=%x, expected 0xff", resp.ConstantMaskOutputs)
	}

	out := nativeBuf.OutputPlane(0, 0)
	want := []byte{1, 2, 3, 4}
	for i, b := range want {
		if out[i] != b {
			t.Errorf("output plane byte %d = %d, expected %d", i, out[i], b)
		}
	}

	native.Close()
	select {
	case <-serveDone:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the channel closed")
	}
}

func TestSetRealtimePriorityHintOnlyAppliesOnSync(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	dir := t.TempDir()
	buf, err := shm.Create(dir, "instance-2", testLayout())
	if err != nil {
		t.Fatalf("shm.Create returned error: %s", err)
	}
	defer buf.Close()
	defer buf.Unlink()

	native := NewNativeChannel(testLogger(), socket.New(testLogger(), a), buf)
	native.SetRealtimePriorityHint(50)

	received := make(chan ProcessRequest, 1)
	go func() {
		hb := socket.New(testLogger(), b)
		var req ProcessRequest
		hb.Receive(&req)
		received <- req
		hb.Send(&ProcessResponse{})
	}()

	if _, err := native.Process(&ProcessRequest{}); err != nil {
		t.Fatalf("Process returned error: %s", err)
	}

	req := <-received
	if req.RealtimePriorityHint != 50 {
		t.Errorf("got RealtimePriorityHint=%d, expected 50 on the first sync", req.RealtimePriorityHint)
	}
}
