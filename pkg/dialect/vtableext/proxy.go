package vtableext

import (
	"fmt"
	"sync"
)

// Proxy is the native-side stand-in for one foreign plugin instance. The
// extension set is not fetched at init: the first SupportsExtension or
// CallExtension batches a single GetExtensions call and caches the result, per
// spec §4.5: "the native proxy rejects extension queries for unsupported
// ids and returns the stored vtable pointer for supported ids." The cache
// is invalidated by InvalidateExtensions, used when the plugin requests a
// rescan.
type Proxy struct {
	InstanceID uint64
	channels   *Channels

	mu         sync.Mutex
	extensions map[string]bool
	cached     bool
}

// NewProxy wraps channels for use by one plugin instance.
func NewProxy(instanceID uint64, channels *Channels) *Proxy {
	return &Proxy{InstanceID: instanceID, channels: channels}
}

// Call invokes one method of the plugin's fixed core vtable.
func (p *Proxy) Call(methodID uint32, args []byte) (int32, []byte, error) {
	resp, err := p.channels.Control.SendMessage(&MainCallRequest{InstanceID: p.InstanceID, MethodID: methodID, Args: args})
	if err != nil {
		return 0, nil, err
	}
	mr, ok := resp.(*MainCallResponse)
	if !ok {
		return 0, nil, fmt.Errorf("vtableext: unexpected main-call response type %T", resp)
	}
	return mr.ResultCode, mr.Args, nil
}

// loadExtensions performs the batched GetExtensions call and populates the
// cache if it has not been done yet (or has been invalidated).
func (p *Proxy) loadExtensions() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached {
		return nil
	}
	resp, err := p.channels.Control.SendMessage(&GetExtensionsRequest{InstanceID: p.InstanceID})
	if err != nil {
		return err
	}
	gr, ok := resp.(*GetExtensionsResponse)
	if !ok {
		return fmt.Errorf("vtableext: unexpected get-extensions response type %T", resp)
	}
	set := make(map[string]bool, len(gr.ExtensionIDs))
	for _, id := range gr.ExtensionIDs {
		set[id] = true
	}
	p.extensions = set
	p.cached = true
	return nil
}

// SupportsExtension reports whether the plugin advertised extensionID,
// loading and caching the full set on first use.
func (p *Proxy) SupportsExtension(extensionID string) (bool, error) {
	if err := p.loadExtensions(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extensions[extensionID], nil
}

// InvalidateExtensions clears the cached capability set, forcing the next
// SupportsExtension or CallExtension to re-query the foreign side. Used
// when the plugin requests a parameter/extension rescan (spec §4.5).
func (p *Proxy) InvalidateExtensions() {
	p.mu.Lock()
	p.cached = false
	p.extensions = nil
	p.mu.Unlock()
}

// CallExtension invokes a method on extensionID, rejecting the call
// locally with an error if the plugin never advertised that extension
// rather than making a round trip that would fail on the foreign side
// anyway.
func (p *Proxy) CallExtension(extensionID string, methodID uint32, args []byte) (int32, []byte, error) {
	ok, err := p.SupportsExtension(extensionID)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, fmt.Errorf("vtableext: plugin does not support extension %q", extensionID)
	}
	resp, err := p.channels.Control.SendMessage(&ExtensionCallRequest{
		InstanceID:  p.InstanceID,
		ExtensionID: extensionID,
		MethodID:    methodID,
		Args:        args,
	})
	if err != nil {
		return 0, nil, err
	}
	er, ok2 := resp.(*ExtensionCallResponse)
	if !ok2 {
		return 0, nil, fmt.Errorf("vtableext: unexpected extension-call response type %T", resp)
	}
	return er.ResultCode, er.Args, nil
}
