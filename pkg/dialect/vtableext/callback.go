package vtableext

import "fmt"

// HostProxy is the foreign-side stand-in for the native host's fixed core
// host vtable and its extensions, mirrored per plugin instance.
type HostProxy struct {
	InstanceID uint64
	channels   *Channels
}

// NewHostProxy wraps channels for use by one plugin instance's foreign-side
// host callback surface.
func NewHostProxy(instanceID uint64, channels *Channels) *HostProxy {
	return &HostProxy{InstanceID: instanceID, channels: channels}
}

// Call invokes one method of the host's fixed core vtable.
func (h *HostProxy) Call(methodID uint32, args []byte) (int32, []byte, error) {
	resp, err := h.channels.Callback.SendMessage(&HostCallRequest{InstanceID: h.InstanceID, MethodID: methodID, Args: args})
	if err != nil {
		return 0, nil, err
	}
	hr, ok := resp.(*HostCallResponse)
	if !ok {
		return 0, nil, fmt.Errorf("vtableext: unexpected host-call response type %T", resp)
	}
	return hr.ResultCode, hr.Args, nil
}

// GetExtension asks the native host whether it implements extensionID.
func (h *HostProxy) GetExtension(extensionID string) (bool, error) {
	resp, err := h.channels.Callback.SendMessage(&HostGetExtensionRequest{InstanceID: h.InstanceID, ExtensionID: extensionID})
	if err != nil {
		return false, err
	}
	gr, ok := resp.(*HostGetExtensionResponse)
	if !ok {
		return false, fmt.Errorf("vtableext: unexpected host-get-extension response type %T", resp)
	}
	return gr.Supported, nil
}
