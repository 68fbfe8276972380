package audiopath

import (
	"fmt"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/shm"
	"github.com/sammck-go/abibridge/pkg/socket"
)

// ChannelName returns the audio-thread channel name for instanceID, shared
// with pkg/channelset.AudioThreadChannelName so both sides agree on it.
func ChannelName(instanceID uint64) string {
	return channelset.AudioThreadChannelName(instanceID)
}

// prioritySyncInterval is how often the native side refreshes the realtime
// priority hint it sends the foreign side, per spec §4.6 ("once every
// ~10 s of wall clock").
const prioritySyncInterval = 10 * time.Second

// NativeChannel drives one instance's audio-thread socket from the native
// side: it writes input samples into buf before each call, reads output
// samples after, and keeps a reusable request/response pair to avoid
// allocating on the steady-state path (the struct values are reused; the
// byte slices they reference for events are the one allocation spec §4.6
// accepts will not be literally zero since Go's GC does not support truly
// static event buffers without unsafe tricks -- see the package doc on
// pkg/wire for the same caveat applied to the codec).
type NativeChannel struct {
	logger     corelog.Logger
	sock       *socket.Handler
	buf        *shm.Buffer
	lastPrioritySync time.Time
	priorityHint     int32

	// resp is reused across every Process call so the steady-state audio
	// path never allocates a response struct (spec §4.6: no heap
	// allocation during steady-state processing). Safe because exactly
	// one goroutine -- the audio thread owning this NativeChannel --
	// ever calls Process.
	resp ProcessResponse
}

// NewNativeChannel wraps an already-connected audio-thread socket.
func NewNativeChannel(logger corelog.Logger, sock *socket.Handler, buf *shm.Buffer) *NativeChannel {
	return &NativeChannel{logger: logger, sock: sock, buf: buf}
}

// SetRealtimePriorityHint sets the priority hint that Process sends on its
// next priority sync (the first Process call, then at most once every
// prioritySyncInterval). The hint is kept and resent on every later sync.
func (c *NativeChannel) SetRealtimePriorityHint(priority int32) {
	c.priorityHint = priority
}

// Process sends one process request and blocks for the matching response.
// Sample data itself is exchanged through the shared buffer wrapped by c;
// callers must have already written input planes before calling Process
// and read output planes only after it returns.
func (c *NativeChannel) Process(req *ProcessRequest) (*ProcessResponse, error) {
	req.RealtimePriorityHint = 0
	if time.Since(c.lastPrioritySync) >= prioritySyncInterval {
		req.RealtimePriorityHint = c.priorityHint
		c.lastPrioritySync = time.Now()
	}

	if err := c.sock.Send(req); err != nil {
		return nil, fmt.Errorf("audiopath: sending process request: %w", err)
	}
	c.resp = ProcessResponse{}
	if err := c.sock.Receive(&c.resp); err != nil {
		return nil, fmt.Errorf("audiopath: receiving process response: %w", err)
	}
	return &c.resp, nil
}

// Close closes the underlying socket. Idempotent.
func (c *NativeChannel) Close() error {
	return c.sock.Close()
}

// ProcessFunc is called once per received process request on the foreign
// side; implementations reconstruct per-bus sample pointers directly into
// buf (owned by the caller of Serve) and invoke the loaded plugin's process
// entry point.
type ProcessFunc func(req *ProcessRequest, buf *shm.Buffer) (*ProcessResponse, error)

// PassthroughProcess is a ProcessFunc that copies each input bus straight
// to the correspondingly-indexed output bus. Used where no real plugin
// processing entry point is wired in (loading and calling into an
// arbitrary foreign ABI is out of scope here); a genuine dialect would
// instead dispatch into the loaded plugin's own process callback.
func PassthroughProcess(req *ProcessRequest, buf *shm.Buffer) (*ProcessResponse, error) {
	layout := buf.Layout()
	busCount := len(layout.InputChannels)
	if len(layout.OutputChannels) < busCount {
		busCount = len(layout.OutputChannels)
	}
	for bus := 0; bus < busCount; bus++ {
		channels := layout.InputChannels[bus]
		if layout.OutputChannels[bus] < channels {
			channels = layout.OutputChannels[bus]
		}
		for ch := 0; ch < channels; ch++ {
			copy(buf.OutputPlane(bus, ch), buf.InputPlane(bus, ch))
		}
	}
	return &ProcessResponse{}, nil
}

// ForeignChannel drives one instance's audio-thread socket from the
// foreign side: a dedicated goroutine (per spec §5, "one thread waiting on
// the audio channel") loops receiving process requests and dispatching
// them to process.
type ForeignChannel struct {
	logger  corelog.Logger
	sock    *socket.Handler
	buf     *shm.Buffer
	process ProcessFunc

	// req is reused as the decode target for every received process
	// request, for the same no-heap-allocation reason as NativeChannel's
	// resp field. Safe because Loop only calls newMessage again after
	// handle has returned.
	req ProcessRequest
}

// NewForeignChannel wraps an already-connected audio-thread socket.
func NewForeignChannel(logger corelog.Logger, sock *socket.Handler, buf *shm.Buffer, process ProcessFunc) *ForeignChannel {
	return &ForeignChannel{logger: logger, sock: sock, buf: buf, process: process}
}

// Serve runs the receive loop until the socket is closed. Intended to run
// on its own dedicated audio thread; callers should runtime.LockOSThread
// before calling Serve if they need WithDenormalsFlushed to take effect.
func (c *ForeignChannel) Serve() error {
	return c.sock.Loop(
		func() interface{} {
			c.req = ProcessRequest{}
			return &c.req
		},
		func(raw interface{}) error {
			req := raw.(*ProcessRequest)
			var resp *ProcessResponse
			var err error
			WithDenormalsFlushed(func() {
				resp, err = c.process(req, c.buf)
			})
			if err != nil {
				return err
			}
			return c.sock.Send(resp)
		},
	)
}

// Close closes the underlying socket. Idempotent.
func (c *ForeignChannel) Close() error {
	return c.sock.Close()
}
