package simplec

import "fmt"

// Opcode is the single dispatcher opcode space this dialect multiplexes
// nearly every host->plugin call through, per spec §4.4.
type Opcode int32

// A representative subset of dispatcher opcodes; the real ABI defines
// several dozen, but the bridge only needs to know the handful that affect
// instance or audio-thread lifecycle -- everything else passes through
// Dispatch opaquely.
const (
	OpcodeOpen          Opcode = 0
	OpcodeClose         Opcode = 1
	OpcodeSetBlockSize  Opcode = 2
	OpcodeSetSampleRate Opcode = 3
	OpcodeStateChanged  Opcode = 12 // active/suspend toggle
)

const destroyOpcode = OpcodeClose

// Proxy is the native-side stand-in for one foreign plugin instance: every
// call the native host makes against it is forwarded over the dispatch
// channel and, on destruction, a close dispatch retires the foreign
// instance.
type Proxy struct {
	InstanceID uint64
	channels   *Channels
}

// NewProxy wraps channels for use by one plugin instance. The caller is
// responsible for registering the returned Proxy in a
// github.com/sammck-go/abibridge/pkg/registry.Registry under the same
// instance id used here.
func NewProxy(instanceID uint64, channels *Channels) *Proxy {
	return &Proxy{InstanceID: instanceID, channels: channels}
}

// Dispatch forwards one dispatcher call to the foreign plugin and returns
// its integer result plus any data it wrote back.
func (p *Proxy) Dispatch(opcode Opcode, index int32, value int64, opt float32, data []byte) (int64, []byte, error) {
	req := &DispatchRequest{
		InstanceID: p.InstanceID,
		Opcode:     int32(opcode),
		Index:      index,
		Value:      value,
		Opt:        opt,
		Data:       data,
	}
	resp, err := p.channels.Dispatch.SendMessage(req)
	if err != nil {
		return 0, nil, err
	}
	dr, ok := resp.(*DispatchResponse)
	if !ok {
		return 0, nil, fmt.Errorf("simplec: unexpected dispatch response type %T", resp)
	}
	return dr.Result, dr.Data, nil
}

// GetParameter fetches a parameter's current normalized value.
func (p *Proxy) GetParameter(index int32) (float32, error) {
	resp, err := p.channels.Parameters.SendMessage(&GetParameterRequest{InstanceID: p.InstanceID, Index: index})
	if err != nil {
		return 0, err
	}
	gr, ok := resp.(*GetParameterResponse)
	if !ok {
		return 0, fmt.Errorf("simplec: unexpected get-parameter response type %T", resp)
	}
	return gr.Value, nil
}

// SetParameter sets a parameter's normalized value.
func (p *Proxy) SetParameter(index int32, value float32) error {
	resp, err := p.channels.Parameters.SendMessage(&SetParameterRequest{InstanceID: p.InstanceID, Index: index, Value: value})
	if err != nil {
		return err
	}
	if _, ok := resp.(*SetParameterResponse); !ok {
		return fmt.Errorf("simplec: unexpected set-parameter response type %T", resp)
	}
	return nil
}

// Destroy sends the closing dispatch call that tears the foreign instance
// down. Per spec §4.5, dropping the native-side proxy owns this by
// contract -- callers should invoke Destroy from whatever finalizer or
// explicit teardown path the embedding host calls when it releases the
// plugin.
func (p *Proxy) Destroy() error {
	_, _, err := p.Dispatch(destroyOpcode, 0, 0, 0, nil)
	return err
}
