// Package typedmsg implements the typed message handler from spec §4.3: a
// single channel carries a tagged variant of request types, each paired
// with a declared response type. It is built directly on pkg/adhocsocket,
// so it inherits the primary/secondary contention handling for free.
package typedmsg

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/adhocsocket"
	"github.com/sammck-go/abibridge/pkg/wire"
)

// TaggedRequest is implemented by every request variant a MessageSet knows
// about. MessageTag identifies the variant on the wire.
type TaggedRequest interface {
	MessageTag() uint32
}

// TaggedResponse is implemented by every response variant.
type TaggedResponse interface {
	MessageTag() uint32
}

// envelope carries one tagged request or response. Encoding Body
// separately (rather than flattening the request's fields into the
// envelope) lets the dispatch side pick the right Go type for Body before
// it is decoded.
type envelope struct {
	Tag  uint32          `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

type variant struct {
	newRequest   func() TaggedRequest
	newResponse  func() TaggedResponse
	responseTag  uint32
}

// MessageSet is the complete tagged variant of request types carried by one
// channel, built once per dialect adapter and shared by every Handler for
// that channel role.
type MessageSet struct {
	byRequestTag map[uint32]variant
}

// NewMessageSet returns an empty MessageSet.
func NewMessageSet() *MessageSet {
	return &MessageSet{byRequestTag: make(map[uint32]variant)}
}

// Register declares that requests tagged requestTag decode via newRequest
// and are answered with a response tagged responseTag, decoded via
// newResponse. Dialect adapters call this once per message type at init.
func (ms *MessageSet) Register(
	requestTag uint32,
	newRequest func() TaggedRequest,
	responseTag uint32,
	newResponse func() TaggedResponse,
) {
	ms.byRequestTag[requestTag] = variant{
		newRequest:  newRequest,
		newResponse: newResponse,
		responseTag: responseTag,
	}
}

// Handler provides SendMessage/ReceiveMessages for one channel, backed by
// an adhocsocket.Handler and interpreting frames per a MessageSet.
type Handler struct {
	logger corelog.Logger
	ad     *adhocsocket.Handler
	set    *MessageSet
}

// New builds a typed Handler over an already-constructed adhocsocket.Handler.
func New(logger corelog.Logger, ad *adhocsocket.Handler, set *MessageSet) *Handler {
	return &Handler{logger: logger, ad: ad, set: set}
}

// SendMessage sends req and blocks for its response, which is validated to
// carry the tag declared for req's variant and decoded to the matching Go
// type.
func (h *Handler) SendMessage(req TaggedRequest) (TaggedResponse, error) {
	v, ok := h.set.byRequestTag[req.MessageTag()]
	if !ok {
		return nil, fmt.Errorf("typedmsg: no variant registered for request tag %d", req.MessageTag())
	}
	body, err := wire.Marshal(req)
	if err != nil {
		return nil, err
	}
	reqEnv := envelope{Tag: req.MessageTag(), Body: body}
	var respEnv envelope
	if err := h.ad.SendReceive(&reqEnv, &respEnv); err != nil {
		return nil, err
	}
	if respEnv.Tag != v.responseTag {
		return nil, fmt.Errorf("typedmsg: expected response tag %d, got %d", v.responseTag, respEnv.Tag)
	}
	resp := v.newResponse()
	if err := wire.Unmarshal(respEnv.Body, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RequestHandler decodes a request and returns the response to send back.
type RequestHandler func(req TaggedRequest) (TaggedResponse, error)

// ReceiveMessages runs the channel's dispatch loop: every inbound request
// is decoded per the MessageSet, passed to callback, and the returned
// response is validated against the variant's declared response type and
// sent back on whichever socket (primary or secondary) carried the
// request. Returns when the channel is closed.
func (h *Handler) ReceiveMessages(callback RequestHandler) error {
	newMessage := func() interface{} { return &envelope{} }
	handle := func(raw interface{}) (interface{}, error) {
		env := raw.(*envelope)
		v, ok := h.set.byRequestTag[env.Tag]
		if !ok {
			return nil, fmt.Errorf("typedmsg: unknown request tag %d", env.Tag)
		}
		req := v.newRequest()
		if err := wire.Unmarshal(env.Body, req); err != nil {
			return nil, err
		}
		resp, err := callback(req)
		if err != nil {
			return nil, err
		}
		if resp.MessageTag() != v.responseTag {
			return nil, fmt.Errorf("typedmsg: handler returned tag %d, want %d", resp.MessageTag(), v.responseTag)
		}
		body, err := wire.Marshal(resp)
		if err != nil {
			return nil, err
		}
		return &envelope{Tag: resp.MessageTag(), Body: body}, nil
	}
	return h.ad.ReceiveMulti(newMessage, handle)
}

// Close closes the underlying ad-hoc socket.
func (h *Handler) Close() error {
	return h.ad.Close()
}
