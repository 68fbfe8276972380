package comiface

import "fmt"

// HostCallbackProxy is the foreign-side stand-in for one native-side
// callback object (component handler, plug-frame, host context, context
// menu, connection point) that the foreign plugin was handed during
// initialization, per spec §4.5. Every call the foreign plugin makes
// against it is forwarded over the callback channel to the real object on
// the native side.
type HostCallbackProxy struct {
	ObjectID uint64
	channels *Channels
}

// NewHostCallbackProxy wraps channels for use by one native callback
// object mirrored on the foreign side.
func NewHostCallbackProxy(objectID uint64, channels *Channels) *HostCallbackProxy {
	return &HostCallbackProxy{ObjectID: objectID, channels: channels}
}

// Call invokes one method on the native callback object.
func (p *HostCallbackProxy) Call(methodID uint32, args []byte) (int32, []byte, error) {
	resp, err := p.channels.Callback.SendMessage(&CallbackInvokeRequest{
		ObjectID: p.ObjectID,
		MethodID: methodID,
		Args:     args,
	})
	if err != nil {
		return 0, nil, err
	}
	cr, ok := resp.(*CallbackInvokeResponse)
	if !ok {
		return 0, nil, fmt.Errorf("comiface: unexpected callback-invoke response type %T", resp)
	}
	return cr.ResultCode, cr.Args, nil
}
