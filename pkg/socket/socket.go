// Package socket implements the socket handler from spec §2/§4.1: one
// long-lived stream socket per logical channel, offering blocking send,
// blocking receive, and a receive loop. It is the layer directly above the
// wire codec; ad-hoc re-entrancy and typed dispatch are built on top of it
// in pkg/adhocsocket and pkg/typedmsg.
package socket

import (
	"fmt"
	"net"
	"sync"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/bridgeerr"
	"github.com/sammck-go/abibridge/pkg/wire"
)

// Handler wraps one net.Conn (a connected unix-domain stream socket) with
// framed send/receive. Send is internally serialized with sendMu so two
// goroutines calling Send concurrently never interleave frames; Receive is
// expected to be called from a single reader goroutine (the channel's
// receive loop), matching the one-accepting-side/one-connecting-side model
// in spec §3.
type Handler struct {
	Logger corelog.Logger

	conn net.Conn

	sendMu     sync.Mutex
	sendBuf    wire.Buffer
	recvBuf    wire.Buffer
	closeOnce  sync.Once
	closedChan chan struct{}
}

// New wraps conn in a Handler.
func New(logger corelog.Logger, conn net.Conn) *Handler {
	return &Handler{
		Logger:     logger,
		conn:       conn,
		closedChan: make(chan struct{}),
	}
}

// Conn returns the underlying net.Conn, e.g. for address inspection.
func (h *Handler) Conn() net.Conn {
	return h.conn
}

// Send serializes value and writes it as one frame. Safe for concurrent
// use; concurrent sends are serialized by sendMu (contrast with
// adhocsocket.Handler, which instead redirects contending senders to a
// secondary socket).
func (h *Handler) Send(value interface{}) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	return wire.WriteObject(h.conn, value, &h.sendBuf)
}

// TrySend behaves like Send but returns ok=false instead of blocking if
// another goroutine is already sending. Used by pkg/adhocsocket to decide
// whether to fall back to a secondary socket.
func (h *Handler) TrySend(value interface{}) (ok bool, err error) {
	if !h.sendMu.TryLock() {
		return false, nil
	}
	defer h.sendMu.Unlock()
	return true, wire.WriteObject(h.conn, value, &h.sendBuf)
}

// Receive reads and decodes exactly one frame into into. Not safe for
// concurrent use by multiple goroutines; a channel has exactly one reader.
func (h *Handler) Receive(into interface{}) error {
	return wire.ReadObject(h.conn, into, &h.recvBuf)
}

// Loop repeatedly calls newMessage to get a fresh decode target, reads one
// frame into it, and invokes handle with the decoded value. It returns when
// Receive fails (typically because Close unblocked the read with a
// connection-closed error) or handle returns a non-nil error.
func (h *Handler) Loop(newMessage func() interface{}, handle func(interface{}) error) error {
	for {
		msg := newMessage()
		if err := h.Receive(msg); err != nil {
			select {
			case <-h.closedChan:
				return nil
			default:
				return err
			}
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection, unblocking any in-flight Send or
// Receive with a connection-closed error. Idempotent, per spec §4.4/§8.
func (h *Handler) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.closedChan)
		cerr := h.conn.Close()
		if cerr != nil {
			err = fmt.Errorf("%w: closing socket: %s", bridgeerr.Transport, cerr)
		}
	})
	return err
}

// IsClosed reports whether Close has been called.
func (h *Handler) IsClosed() bool {
	select {
	case <-h.closedChan:
		return true
	default:
		return false
	}
}
