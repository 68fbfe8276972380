package simplec

import (
	"net"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/adhocsocket"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/socket"
	"github.com/sammck-go/abibridge/pkg/typedmsg"
)

// Channels is the fixed channel bundle for one loaded plugin under this
// dialect: dispatch, host-callback, parameters and a plain control socket,
// per spec §4.4. Audio-thread channels are added separately via
// channelset.Set.AddAudioThread, keyed by instance id.
type Channels struct {
	Set          *channelset.Set
	Control      *socket.Handler
	Dispatch     *typedmsg.Handler
	HostCallback *typedmsg.Handler
	Parameters   *typedmsg.Handler
}

// Listen is used by the accepting side (the native host process, which
// owns the endpoint directory): it opens a listener per channel and blocks
// accepting exactly one connection on each, in the order the foreign
// worker is expected to connect.
func Listen(logger corelog.Logger, dir *channelset.EndpointDir) (*Channels, error) {
	set := channelset.NewSet(logger, dir)

	control, err := acceptSocket(logger, set, ChannelControl)
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelControl, control)

	dispatch, err := acceptTyped(logger, set, ChannelDispatch, DispatchMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelDispatch, dispatch)

	hostCallback, err := acceptTyped(logger, set, ChannelHostCallback, HostCallbackMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelHostCallback, hostCallback)

	parameters, err := acceptTyped(logger, set, ChannelParameters, ParametersMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelParameters, parameters)

	return &Channels{
		Set:          set,
		Control:      control,
		Dispatch:     dispatch,
		HostCallback: hostCallback,
		Parameters:   parameters,
	}, nil
}

// Dial is used by the connecting side (the foreign worker process): it
// connects to every channel the native side has already started listening
// on.
func Dial(logger corelog.Logger, dir *channelset.EndpointDir) (*Channels, error) {
	set := channelset.NewSet(logger, dir)

	controlConn, err := set.DialUnix(ChannelControl)
	if err != nil {
		set.Close()
		return nil, err
	}
	control := socket.New(logger.Fork("control"), controlConn)
	set.Register(ChannelControl, control)

	dispatch, err := dialTyped(logger, set, ChannelDispatch, DispatchMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelDispatch, dispatch)

	hostCallback, err := dialTyped(logger, set, ChannelHostCallback, HostCallbackMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelHostCallback, hostCallback)

	parameters, err := dialTyped(logger, set, ChannelParameters, ParametersMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelParameters, parameters)

	return &Channels{
		Set:          set,
		Control:      control,
		Dispatch:     dispatch,
		HostCallback: hostCallback,
		Parameters:   parameters,
	}, nil
}

// Close tears down every channel in the set, including any audio-thread
// channels added later. Idempotent.
func (c *Channels) Close() error {
	return c.Set.Close()
}

func acceptSocket(logger corelog.Logger, set *channelset.Set, name string) (*socket.Handler, error) {
	ln, err := set.ListenUnix(name)
	if err != nil {
		return nil, err
	}
	conn, err := ln.Accept()
	ln.Close()
	if err != nil {
		return nil, err
	}
	return socket.New(logger.Fork(name), conn), nil
}

func acceptTyped(logger corelog.Logger, set *channelset.Set, name string, ms *typedmsg.MessageSet) (*typedmsg.Handler, error) {
	ln, err := set.ListenUnix(name)
	if err != nil {
		return nil, err
	}
	conn, err := ln.Accept()
	if err != nil {
		ln.Close()
		return nil, err
	}
	ad := adhocsocket.Accept(logger.Fork(name), conn, ln)
	return typedmsg.New(logger.Fork(name), ad, ms), nil
}

func dialTyped(logger corelog.Logger, set *channelset.Set, name string, ms *typedmsg.MessageSet) (*typedmsg.Handler, error) {
	conn, err := set.DialUnix(name)
	if err != nil {
		return nil, err
	}
	dial := func() (net.Conn, error) { return set.DialUnix(name) }
	ad := adhocsocket.Connect(logger.Fork(name), conn, dial)
	return typedmsg.New(logger.Fork(name), ad, ms), nil
}
