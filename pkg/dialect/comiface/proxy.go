package comiface

import (
	"fmt"
	"sync/atomic"
)

// Proxy is the native-side stand-in for one foreign COM-style object. It
// follows the dialect's reference-counting rules (spec §4.5): AddRef/
// Release are forwarded to the foreign side rather than counted purely
// locally, since the foreign object's lifetime is what actually matters.
type Proxy struct {
	ObjectID uint64
	channels *Channels
	refs     int32
}

// NewProxy wraps channels for use by one foreign object, starting at a
// reference count of one (the count implied by the QueryInterface or
// create call that produced ObjectID).
func NewProxy(objectID uint64, channels *Channels) *Proxy {
	return &Proxy{ObjectID: objectID, channels: channels, refs: 1}
}

// QueryInterface asks the foreign object whether it implements iid. On
// success, a new Proxy is returned (which may alias the same ObjectID, per
// COM convention, but is tracked with its own local reference count).
func (p *Proxy) QueryInterface(iid InterfaceID) (*Proxy, bool, error) {
	resp, err := p.channels.Control.SendMessage(&QueryInterfaceRequest{ObjectID: p.ObjectID, IID: iid})
	if err != nil {
		return nil, false, err
	}
	qr, ok := resp.(*QueryInterfaceResponse)
	if !ok {
		return nil, false, fmt.Errorf("comiface: unexpected query-interface response type %T", resp)
	}
	if !qr.Found {
		return nil, false, nil
	}
	return NewProxy(qr.ObjectID, p.channels), true, nil
}

// AddRef increments the local and foreign reference counts.
func (p *Proxy) AddRef() (uint32, error) {
	resp, err := p.channels.Control.SendMessage(&AddRefRequest{ObjectID: p.ObjectID})
	if err != nil {
		return 0, err
	}
	ar, ok := resp.(*AddRefResponse)
	if !ok {
		return 0, fmt.Errorf("comiface: unexpected add-ref response type %T", resp)
	}
	atomic.AddInt32(&p.refs, 1)
	return ar.NewCount, nil
}

// Release decrements the local and foreign reference counts. When the
// foreign count reaches zero the underlying object is destroyed there;
// callers should stop using this Proxy once Release has been called as
// many times as it was obtained or AddRef'd.
func (p *Proxy) Release() (uint32, error) {
	resp, err := p.channels.Control.SendMessage(&ReleaseRequest{ObjectID: p.ObjectID})
	if err != nil {
		return 0, err
	}
	rr, ok := resp.(*ReleaseResponse)
	if !ok {
		return 0, fmt.Errorf("comiface: unexpected release response type %T", resp)
	}
	atomic.AddInt32(&p.refs, -1)
	return rr.NewCount, nil
}

// Call invokes one method on the foreign object through the interface
// named by iface, returning its result code and any out-parameter bytes.
func (p *Proxy) Call(iface InterfaceID, methodID uint32, args []byte) (int32, []byte, error) {
	resp, err := p.channels.Control.SendMessage(&MethodCallRequest{
		ObjectID:  p.ObjectID,
		Interface: iface,
		MethodID:  methodID,
		Args:      args,
	})
	if err != nil {
		return 0, nil, err
	}
	mr, ok := resp.(*MethodCallResponse)
	if !ok {
		return 0, nil, fmt.Errorf("comiface: unexpected method-call response type %T", resp)
	}
	return mr.ResultCode, mr.Args, nil
}

// LocalRefCount returns this Proxy's own view of the reference count,
// which may lag the foreign side's authoritative count between calls.
func (p *Proxy) LocalRefCount() int32 {
	return atomic.LoadInt32(&p.refs)
}
