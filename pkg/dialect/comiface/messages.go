// Package comiface is the format adapter for the COM-style multi-interface
// ABI: object graphs reached through QueryInterface, explicit AddRef/
// Release reference counting, and method calls addressed by an interface
// id plus a method id, all multiplexed onto one combined control channel
// per spec §4.4's "COM-style dialect" channel inventory.
package comiface

import "github.com/sammck-go/abibridge/pkg/typedmsg"

// Channel names under the endpoint directory.
const (
	ChannelControl  = "control"
	ChannelCallback = "callback"
)

const (
	tagQueryInterfaceRequest  uint32 = 200
	tagQueryInterfaceResponse uint32 = 201

	tagAddRefRequest  uint32 = 202
	tagAddRefResponse uint32 = 203

	tagReleaseRequest  uint32 = 204
	tagReleaseResponse uint32 = 205

	tagMethodCallRequest  uint32 = 206
	tagMethodCallResponse uint32 = 207

	tagCallbackInvokeRequest  uint32 = 208
	tagCallbackInvokeResponse uint32 = 209
)

// InterfaceID is a 16-byte COM-style interface identifier.
type InterfaceID [16]byte

// QueryInterfaceRequest asks the object named by ObjectID whether it
// implements IID; on success the response carries the (possibly distinct)
// object id for that interface view, already AddRef'd per COM convention.
type QueryInterfaceRequest struct {
	ObjectID uint64      `cbor:"1,keyasint"`
	IID      InterfaceID `cbor:"2,keyasint"`
}

func (QueryInterfaceRequest) MessageTag() uint32 { return tagQueryInterfaceRequest }

// QueryInterfaceResponse reports whether IID is supported and, if so, the
// object id to use for subsequent calls through that interface.
type QueryInterfaceResponse struct {
	Found    bool   `cbor:"1,keyasint"`
	ObjectID uint64 `cbor:"2,keyasint"`
}

func (QueryInterfaceResponse) MessageTag() uint32 { return tagQueryInterfaceResponse }

// AddRefRequest increments ObjectID's reference count.
type AddRefRequest struct {
	ObjectID uint64 `cbor:"1,keyasint"`
}

func (AddRefRequest) MessageTag() uint32 { return tagAddRefRequest }

// AddRefResponse carries the reference count after the increment.
type AddRefResponse struct {
	NewCount uint32 `cbor:"1,keyasint"`
}

func (AddRefResponse) MessageTag() uint32 { return tagAddRefResponse }

// ReleaseRequest decrements ObjectID's reference count. A count reaching
// zero on the foreign side destroys the underlying object.
type ReleaseRequest struct {
	ObjectID uint64 `cbor:"1,keyasint"`
}

func (ReleaseRequest) MessageTag() uint32 { return tagReleaseRequest }

// ReleaseResponse carries the reference count after the decrement.
type ReleaseResponse struct {
	NewCount uint32 `cbor:"1,keyasint"`
}

func (ReleaseResponse) MessageTag() uint32 { return tagReleaseResponse }

// MethodCallRequest invokes one COM-style method: the interface id
// disambiguates overloaded method-id spaces when a single object
// implements several interfaces.
type MethodCallRequest struct {
	ObjectID    uint64      `cbor:"1,keyasint"`
	Interface   InterfaceID `cbor:"2,keyasint"`
	MethodID    uint32      `cbor:"3,keyasint"`
	Args        []byte      `cbor:"4,keyasint"`
}

func (MethodCallRequest) MessageTag() uint32 { return tagMethodCallRequest }

// MethodCallResponse carries the method's COM-style result code plus any
// out-parameters serialized into Args.
type MethodCallResponse struct {
	ResultCode int32  `cbor:"1,keyasint"`
	Args       []byte `cbor:"2,keyasint"`
}

func (MethodCallResponse) MessageTag() uint32 { return tagMethodCallResponse }

// CallbackInvokeRequest mirrors a foreign-plugin call into a native-side
// callback object (component handler, plug-frame, host context, context
// menu, connection point) mirrored on the foreign side, per spec §4.5.
type CallbackInvokeRequest struct {
	ObjectID uint64 `cbor:"1,keyasint"`
	MethodID uint32 `cbor:"2,keyasint"`
	Args     []byte `cbor:"3,keyasint"`
}

func (CallbackInvokeRequest) MessageTag() uint32 { return tagCallbackInvokeRequest }

// CallbackInvokeResponse carries the native callback's result.
type CallbackInvokeResponse struct {
	ResultCode int32  `cbor:"1,keyasint"`
	Args       []byte `cbor:"2,keyasint"`
}

func (CallbackInvokeResponse) MessageTag() uint32 { return tagCallbackInvokeResponse }

// ControlMessageSet is shared by every control-channel Handler.
func ControlMessageSet() *typedmsg.MessageSet {
	ms := typedmsg.NewMessageSet()
	ms.Register(tagQueryInterfaceRequest,
		func() typedmsg.TaggedRequest { return &QueryInterfaceRequest{} },
		tagQueryInterfaceResponse,
		func() typedmsg.TaggedResponse { return &QueryInterfaceResponse{} },
	)
	ms.Register(tagAddRefRequest,
		func() typedmsg.TaggedRequest { return &AddRefRequest{} },
		tagAddRefResponse,
		func() typedmsg.TaggedResponse { return &AddRefResponse{} },
	)
	ms.Register(tagReleaseRequest,
		func() typedmsg.TaggedRequest { return &ReleaseRequest{} },
		tagReleaseResponse,
		func() typedmsg.TaggedResponse { return &ReleaseResponse{} },
	)
	ms.Register(tagMethodCallRequest,
		func() typedmsg.TaggedRequest { return &MethodCallRequest{} },
		tagMethodCallResponse,
		func() typedmsg.TaggedResponse { return &MethodCallResponse{} },
	)
	return ms
}

// CallbackMessageSet is shared by every callback-channel Handler.
func CallbackMessageSet() *typedmsg.MessageSet {
	ms := typedmsg.NewMessageSet()
	ms.Register(tagCallbackInvokeRequest,
		func() typedmsg.TaggedRequest { return &CallbackInvokeRequest{} },
		tagCallbackInvokeResponse,
		func() typedmsg.TaggedResponse { return &CallbackInvokeResponse{} },
	)
	return ms
}
