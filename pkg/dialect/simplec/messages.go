// Package simplec is the format adapter for the simple C callback ABI: a
// single dispatcher opcode carries nearly every host<->plugin call, plus
// dedicated get/set-parameter calls and an audio-thread process call, per
// spec §4.4's "simple C dialect" channel inventory.
package simplec

import "github.com/sammck-go/abibridge/pkg/typedmsg"

// Channel names under the endpoint directory.
const (
	ChannelDispatch     = "dispatch"
	ChannelHostCallback = "host_callback"
	ChannelParameters   = "parameters"
	ChannelControl      = "control"
)

const (
	tagDispatchRequest  uint32 = 100
	tagDispatchResponse uint32 = 101

	tagGetParameterRequest  uint32 = 102
	tagGetParameterResponse uint32 = 103

	tagSetParameterRequest  uint32 = 104
	tagSetParameterResponse uint32 = 105

	tagHostCallbackRequest  uint32 = 106
	tagHostCallbackResponse uint32 = 107
)

// DispatchRequest mirrors the single dispatcher opcode call: an opcode, two
// integer arguments, a float argument, and an opaque byte payload whose
// interpretation depends on the opcode.
type DispatchRequest struct {
	InstanceID uint64 `cbor:"1,keyasint"`
	Opcode     int32  `cbor:"2,keyasint"`
	Index      int32  `cbor:"3,keyasint"`
	Value      int64  `cbor:"4,keyasint"`
	Opt        float32 `cbor:"5,keyasint"`
	Data       []byte  `cbor:"6,keyasint"`
}

func (DispatchRequest) MessageTag() uint32 { return tagDispatchRequest }

// DispatchResponse carries the dispatcher's integer result plus any data it
// wrote back (e.g. a string for opcodes that fill a caller buffer).
type DispatchResponse struct {
	Result int64  `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

func (DispatchResponse) MessageTag() uint32 { return tagDispatchResponse }

// GetParameterRequest asks the plugin for one parameter's normalized value.
type GetParameterRequest struct {
	InstanceID uint64 `cbor:"1,keyasint"`
	Index      int32  `cbor:"2,keyasint"`
}

func (GetParameterRequest) MessageTag() uint32 { return tagGetParameterRequest }

// GetParameterResponse carries the parameter's current value.
type GetParameterResponse struct {
	Value float32 `cbor:"1,keyasint"`
}

func (GetParameterResponse) MessageTag() uint32 { return tagGetParameterResponse }

// SetParameterRequest sets one parameter's normalized value.
type SetParameterRequest struct {
	InstanceID uint64  `cbor:"1,keyasint"`
	Index      int32   `cbor:"2,keyasint"`
	Value      float32 `cbor:"3,keyasint"`
}

func (SetParameterRequest) MessageTag() uint32 { return tagSetParameterRequest }

// SetParameterResponse is empty; its presence confirms the set completed.
type SetParameterResponse struct{}

func (SetParameterResponse) MessageTag() uint32 { return tagSetParameterResponse }

// HostCallbackRequest mirrors a plugin-to-host callback invocation, using
// the same opcode/index/value/opt/data shape as DispatchRequest since the
// dialect multiplexes all such calls through one opcode.
type HostCallbackRequest struct {
	InstanceID uint64  `cbor:"1,keyasint"`
	Opcode     int32   `cbor:"2,keyasint"`
	Index      int32   `cbor:"3,keyasint"`
	Value      int64   `cbor:"4,keyasint"`
	Opt        float32 `cbor:"5,keyasint"`
	Data       []byte  `cbor:"6,keyasint"`
}

func (HostCallbackRequest) MessageTag() uint32 { return tagHostCallbackRequest }

// HostCallbackResponse carries the host's integer result.
type HostCallbackResponse struct {
	Result int64  `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

func (HostCallbackResponse) MessageTag() uint32 { return tagHostCallbackResponse }

// DispatchMessageSet is shared by every dispatch-channel Handler.
func DispatchMessageSet() *typedmsg.MessageSet {
	ms := typedmsg.NewMessageSet()
	ms.Register(tagDispatchRequest,
		func() typedmsg.TaggedRequest { return &DispatchRequest{} },
		tagDispatchResponse,
		func() typedmsg.TaggedResponse { return &DispatchResponse{} },
	)
	return ms
}

// ParametersMessageSet is shared by every parameters-channel Handler.
func ParametersMessageSet() *typedmsg.MessageSet {
	ms := typedmsg.NewMessageSet()
	ms.Register(tagGetParameterRequest,
		func() typedmsg.TaggedRequest { return &GetParameterRequest{} },
		tagGetParameterResponse,
		func() typedmsg.TaggedResponse { return &GetParameterResponse{} },
	)
	ms.Register(tagSetParameterRequest,
		func() typedmsg.TaggedRequest { return &SetParameterRequest{} },
		tagSetParameterResponse,
		func() typedmsg.TaggedResponse { return &SetParameterResponse{} },
	)
	return ms
}

// HostCallbackMessageSet is shared by every host-callback-channel Handler.
func HostCallbackMessageSet() *typedmsg.MessageSet {
	ms := typedmsg.NewMessageSet()
	ms.Register(tagHostCallbackRequest,
		func() typedmsg.TaggedRequest { return &HostCallbackRequest{} },
		tagHostCallbackResponse,
		func() typedmsg.TaggedResponse { return &HostCallbackResponse{} },
	)
	return ms
}
