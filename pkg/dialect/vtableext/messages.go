// Package vtableext is the format adapter for the newer C-vtable ABI with
// extension queries: a small fixed core vtable plus an open-ended set of
// named extensions a plugin may or may not implement, fetched in one batch
// on first use and cached as a set of ids, per spec §4.4's "C-vtable
// dialect" channel inventory and §4.5's capability-set handling.
package vtableext

import "github.com/sammck-go/abibridge/pkg/typedmsg"

// Channel names under the endpoint directory.
const (
	ChannelControl  = "control"
	ChannelCallback = "callback"
)

const (
	tagMainCallRequest  uint32 = 300
	tagMainCallResponse uint32 = 301

	tagGetExtensionsRequest  uint32 = 302
	tagGetExtensionsResponse uint32 = 303

	tagExtensionCallRequest  uint32 = 304
	tagExtensionCallResponse uint32 = 305

	tagHostCallRequest  uint32 = 306
	tagHostCallResponse uint32 = 307

	tagHostGetExtensionRequest  uint32 = 308
	tagHostGetExtensionResponse uint32 = 309
)

// MainCallRequest invokes one method of the plugin's fixed core vtable
// (init, activate, process-adjacent control calls, destroy, ...).
type MainCallRequest struct {
	InstanceID uint64 `cbor:"1,keyasint"`
	MethodID   uint32 `cbor:"2,keyasint"`
	Args       []byte `cbor:"3,keyasint"`
}

func (MainCallRequest) MessageTag() uint32 { return tagMainCallRequest }

// MainCallResponse carries the result of a core vtable call.
type MainCallResponse struct {
	ResultCode int32  `cbor:"1,keyasint"`
	Args       []byte `cbor:"2,keyasint"`
}

func (MainCallResponse) MessageTag() uint32 { return tagMainCallResponse }

// GetExtensionsRequest is issued on an instance's first extension query
// (and again after Proxy.InvalidateExtensions) to batch-fetch every
// extension id the plugin advertises (spec §4.5).
type GetExtensionsRequest struct {
	InstanceID uint64 `cbor:"1,keyasint"`
}

func (GetExtensionsRequest) MessageTag() uint32 { return tagGetExtensionsRequest }

// GetExtensionsResponse carries the full set of supported extension ids.
type GetExtensionsResponse struct {
	ExtensionIDs []string `cbor:"1,keyasint"`
}

func (GetExtensionsResponse) MessageTag() uint32 { return tagGetExtensionsResponse }

// ExtensionCallRequest invokes a method on one previously-queried
// extension.
type ExtensionCallRequest struct {
	InstanceID  uint64 `cbor:"1,keyasint"`
	ExtensionID string `cbor:"2,keyasint"`
	MethodID    uint32 `cbor:"3,keyasint"`
	Args        []byte `cbor:"4,keyasint"`
}

func (ExtensionCallRequest) MessageTag() uint32 { return tagExtensionCallRequest }

// ExtensionCallResponse carries an extension call's result.
type ExtensionCallResponse struct {
	ResultCode int32  `cbor:"1,keyasint"`
	Args       []byte `cbor:"2,keyasint"`
}

func (ExtensionCallResponse) MessageTag() uint32 { return tagExtensionCallResponse }

// HostCallRequest mirrors a plugin-to-host call against the fixed core
// host vtable.
type HostCallRequest struct {
	InstanceID uint64 `cbor:"1,keyasint"`
	MethodID   uint32 `cbor:"2,keyasint"`
	Args       []byte `cbor:"3,keyasint"`
}

func (HostCallRequest) MessageTag() uint32 { return tagHostCallRequest }

// HostCallResponse carries the host's result.
type HostCallResponse struct {
	ResultCode int32  `cbor:"1,keyasint"`
	Args       []byte `cbor:"2,keyasint"`
}

func (HostCallResponse) MessageTag() uint32 { return tagHostCallResponse }

// HostGetExtensionRequest asks the native host whether it implements a
// named extension the foreign plugin wants to call back into.
type HostGetExtensionRequest struct {
	InstanceID  uint64 `cbor:"1,keyasint"`
	ExtensionID string `cbor:"2,keyasint"`
}

func (HostGetExtensionRequest) MessageTag() uint32 { return tagHostGetExtensionRequest }

// HostGetExtensionResponse reports whether the host extension is
// available.
type HostGetExtensionResponse struct {
	Supported bool `cbor:"1,keyasint"`
}

func (HostGetExtensionResponse) MessageTag() uint32 { return tagHostGetExtensionResponse }

// ControlMessageSet is shared by every control-channel Handler.
func ControlMessageSet() *typedmsg.MessageSet {
	ms := typedmsg.NewMessageSet()
	ms.Register(tagMainCallRequest,
		func() typedmsg.TaggedRequest { return &MainCallRequest{} },
		tagMainCallResponse,
		func() typedmsg.TaggedResponse { return &MainCallResponse{} },
	)
	ms.Register(tagGetExtensionsRequest,
		func() typedmsg.TaggedRequest { return &GetExtensionsRequest{} },
		tagGetExtensionsResponse,
		func() typedmsg.TaggedResponse { return &GetExtensionsResponse{} },
	)
	ms.Register(tagExtensionCallRequest,
		func() typedmsg.TaggedRequest { return &ExtensionCallRequest{} },
		tagExtensionCallResponse,
		func() typedmsg.TaggedResponse { return &ExtensionCallResponse{} },
	)
	return ms
}

// CallbackMessageSet is shared by every callback-channel Handler.
func CallbackMessageSet() *typedmsg.MessageSet {
	ms := typedmsg.NewMessageSet()
	ms.Register(tagHostCallRequest,
		func() typedmsg.TaggedRequest { return &HostCallRequest{} },
		tagHostCallResponse,
		func() typedmsg.TaggedResponse { return &HostCallResponse{} },
	)
	ms.Register(tagHostGetExtensionRequest,
		func() typedmsg.TaggedRequest { return &HostGetExtensionRequest{} },
		tagHostGetExtensionResponse,
		func() typedmsg.TaggedResponse { return &HostGetExtensionResponse{} },
	)
	return ms
}
