package adhocsocket

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
)

func testLogger() corelog.Logger {
	return corelog.New("test", corelog.LevelError)
}

type pingMessage struct {
	N int `cbor:"1,keyasint"`
}

func newPair(t *testing.T) (client, server *Handler) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "secondary.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listening on secondary socket: %s", err)
	}

	clientConn, serverConn := net.Pipe()
	dial := func() (net.Conn, error) { return net.Dial("unix", sockPath) }

	client = Connect(testLogger(), clientConn, dial)
	server = Accept(testLogger(), serverConn, ln)
	return client, server
}

func serveDoubling(server *Handler) chan error {
	done := make(chan error, 1)
	go func() {
		done <- server.ReceiveMulti(
			func() interface{} { return &pingMessage{} },
			func(req interface{}) (interface{}, error) {
				in := req.(*pingMessage)
				return &pingMessage{N: in.N * 2}, nil
			},
		)
	}()
	return done
}

func TestSendReceiveOverPrimary(t *testing.T) {
	client, server := newPair(t)
	defer client.Close()
	defer server.Close()

	serveDone := serveDoubling(server)

	var resp pingMessage
	if err := client.SendReceive(&pingMessage{N: 10}, &resp); err != nil {
		t.Fatalf("SendReceive returned error: %s", err)
	}
	if resp.N != 20 {
		t.Errorf("got N=%d, expected 20", resp.N)
	}

	server.Close()
	select {
	case <-serveDone:
	case <-time.After(time.Second):
		t.Fatal("ReceiveMulti did not return after Close")
	}
}

func TestSendReceiveFallsBackToSecondaryUnderContention(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "secondary.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listening on secondary socket: %s", err)
	}

	serveDone := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serveDone <- err
			return
		}
		h := Accept(testLogger(), conn, ln)
		serveDone <- h.ReceiveMulti(
			func() interface{} { return &pingMessage{} },
			func(req interface{}) (interface{}, error) {
				in := req.(*pingMessage)
				return &pingMessage{N: in.N + 1}, nil
			},
		)
	}()

	// Build a client whose primary connection has no reader on the far
	// end, so any Send on it blocks forever holding sendMu -- forcing
	// SendReceive's TrySend to observe contention and fall back to
	// dialing a fresh secondary against the listener above.
	clientConn, deadEnd := net.Pipe()
	defer deadEnd.Close()
	client := Connect(testLogger(), clientConn, func() (net.Conn, error) { return net.Dial("unix", sockPath) })
	client.bootstrapDone.Store(true)
	defer clientConn.Close()

	blockedSend := make(chan struct{})
	go func() {
		close(blockedSend)
		client.primary.Send(&pingMessage{N: 999})
	}()
	<-blockedSend
	time.Sleep(20 * time.Millisecond)

	var resp pingMessage
	if err := client.SendReceive(&pingMessage{N: 41}, &resp); err != nil {
		t.Fatalf("SendReceive returned error: %s", err)
	}
	if resp.N != 42 {
		t.Errorf("got N=%d, expected 42 via the secondary fallback path", resp.N)
	}

	ln.Close()
	select {
	case <-serveDone:
	case <-time.After(time.Second):
	}
}

func TestSendReceiveUncontendedPrimarySkipsFailingDial(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	dialErr := errors.New("no secondary listener yet")
	client := Connect(testLogger(), clientConn, func() (net.Conn, error) { return nil, dialErr })
	server := Accept(testLogger(), serverConn, nil)
	defer client.Close()

	serveDone := serveDoubling(server)

	var resp pingMessage
	if err := client.SendReceive(&pingMessage{N: 3}, &resp); err != nil {
		t.Fatalf("SendReceive returned error: %s", err)
	}
	if resp.N != 6 {
		t.Errorf("got N=%d, expected 6", resp.N)
	}
	if !client.bootstrapDone.Load() {
		t.Error("expected bootstrapDone to be set after a successful primary round trip")
	}

	server.Close()
	select {
	case <-serveDone:
	case <-time.After(time.Second):
		t.Fatal("ReceiveMulti did not return after Close")
	}
}

func TestSendReceivePropagatesDialErrorAfterBootstrap(t *testing.T) {
	clientConn, deadEnd := net.Pipe()
	defer deadEnd.Close()
	defer clientConn.Close()

	dialErr := errors.New("secondary dial failed")
	client := Connect(testLogger(), clientConn, func() (net.Conn, error) { return nil, dialErr })
	client.bootstrapDone.Store(true)

	// Nothing ever reads the far end of clientConn, so this Send blocks
	// forever holding sendMu, guaranteeing the next SendReceive's TrySend
	// observes contention and must fall back to dialing a secondary.
	blockedSend := make(chan struct{})
	go func() {
		close(blockedSend)
		client.primary.Send(&pingMessage{N: 999})
	}()
	<-blockedSend
	time.Sleep(20 * time.Millisecond)

	var resp pingMessage
	err := client.SendReceive(&pingMessage{N: 2}, &resp)
	if err == nil {
		t.Fatal("expected SendReceive to fail once both the primary is busy and the secondary dial fails")
	}
}
