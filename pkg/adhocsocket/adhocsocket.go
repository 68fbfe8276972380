// Package adhocsocket implements the ad-hoc socket handler from spec §4.2:
// a primary long-lived socket plus short-lived secondary sockets spawned on
// contention, so that mutually recursive and multi-threaded traffic on one
// channel never deadlocks behind a single send mutex.
package adhocsocket

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/socket"
)

// spinInterval is the poll period for Close's busy-wait on the in-flight
// ReceiveMulti loop, per spec §4.2 ("a flag plus busy-wait is acceptable
// because it is a short interval").
const spinInterval = time.Millisecond

// Dialer opens a fresh secondary connection to the channel's peer endpoint.
type Dialer func() (net.Conn, error)

// Handler is either a connector (issues SendReceive, dials secondaries on
// contention) or an acceptor (accepts the primary connection, then runs an
// accept loop spawning one handler per secondary connection). Exactly one
// of dial/listener is set, matching the one-accept/one-connect invariant
// in spec §3.
type Handler struct {
	logger corelog.Logger

	primary  *socket.Handler
	dial     Dialer
	listener net.Listener

	bootstrapDone atomic.Bool
	loopActive    atomic.Bool
	acceptWG      sync.WaitGroup
}

// Connect builds a connector-side Handler around an already-established
// primary connection, using dial to open secondary connections when the
// primary's send lock is contended.
func Connect(logger corelog.Logger, primaryConn net.Conn, dial Dialer) *Handler {
	return &Handler{
		logger:  logger,
		primary: socket.New(logger.Fork("primary"), primaryConn),
		dial:    dial,
	}
}

// Accept builds an acceptor-side Handler around the already-accepted
// primary connection and a listener for secondary connections.
func Accept(logger corelog.Logger, primaryConn net.Conn, listener net.Listener) *Handler {
	return &Handler{
		logger:   logger,
		primary:  socket.New(logger.Fork("primary"), primaryConn),
		listener: listener,
	}
}

// SendReceive sends req and blocks for the matching response, decoded into
// respInto. If the primary socket's send lock is free, it is used and the
// response is read back from the primary. Otherwise a secondary connection
// is dialed, used for exactly one request/response, and closed -- unless
// this is the very first call on a fresh connection and no listener is up
// yet to accept the secondary, in which case it falls back to blocking on
// the primary (the bootstrap race described in spec §4.2 and §9).
func (h *Handler) SendReceive(req, respInto interface{}) error {
	ok, err := h.primary.TrySend(req)
	if ok {
		if err != nil {
			return err
		}
		err = h.primary.Receive(respInto)
		if err == nil {
			h.bootstrapDone.Store(true)
		}
		return err
	}

	conn, derr := h.dial()
	if derr != nil {
		if !h.bootstrapDone.Load() {
			// Bootstrap race: the peer may not have entered its accept
			// loop yet. Block on the primary instead of failing, but only
			// before the first successful round trip -- per spec §9 this
			// retry must be suppressed outside that window.
			if err := h.primary.Send(req); err != nil {
				return err
			}
			err := h.primary.Receive(respInto)
			if err == nil {
				h.bootstrapDone.Store(true)
			}
			return err
		}
		return derr
	}
	defer conn.Close()

	sec := socket.New(h.logger.Fork("secondary"), conn)
	if err := sec.Send(req); err != nil {
		return err
	}
	if err := sec.Receive(respInto); err != nil {
		return err
	}
	h.bootstrapDone.Store(true)
	return nil
}

// Handle is called once per received request; it returns the value to send
// back as the response.
type Handle func(request interface{}) (response interface{}, err error)

// ReceiveMulti services the primary connection's request stream in a loop,
// replying to each request in order, while concurrently accepting and
// servicing secondary connections (one request/response each) if this
// Handler was built with Accept. It returns when the primary connection is
// closed.
func (h *Handler) ReceiveMulti(newMessage func() interface{}, handle Handle) error {
	h.loopActive.Store(true)
	defer h.loopActive.Store(false)

	if h.listener != nil {
		h.acceptWG.Add(1)
		go h.acceptSecondaries(newMessage, handle)
	}

	return h.primary.Loop(newMessage, func(req interface{}) error {
		resp, err := handle(req)
		if err != nil {
			return err
		}
		return h.primary.Send(resp)
	})
}

func (h *Handler) acceptSecondaries(newMessage func() interface{}, handle Handle) {
	defer h.acceptWG.Done()
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return
		}
		go h.serveSecondary(conn, newMessage, handle)
	}
}

func (h *Handler) serveSecondary(conn net.Conn, newMessage func() interface{}, handle Handle) {
	sh := socket.New(h.logger.Fork("secondary-accepted"), conn)
	defer sh.Close()

	msg := newMessage()
	if err := sh.Receive(msg); err != nil {
		h.logger.DLogf("secondary receive failed: %s", err)
		return
	}
	resp, err := handle(msg)
	if err != nil {
		h.logger.DLogf("secondary handler failed: %s", err)
		return
	}
	if err := sh.Send(resp); err != nil {
		h.logger.DLogf("secondary reply failed: %s", err)
	}
}

// Close closes the primary connection and, if this is an acceptor, the
// listener, then waits for any in-flight ReceiveMulti loop and secondary
// handlers to finish before returning. Idempotent.
func (h *Handler) Close() error {
	err := h.primary.Close()
	if h.listener != nil {
		_ = h.listener.Close()
	}
	for h.loopActive.Load() {
		time.Sleep(spinInterval)
	}
	h.acceptWG.Wait()
	return err
}
