package vtableext

import (
	"net"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/adhocsocket"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/typedmsg"
)

// Channels is the fixed channel bundle for one loaded plugin under this
// dialect: one main-thread control channel and one main-thread callback
// channel, per spec §4.4. Audio-thread channels are added separately via
// channelset.Set.AddAudioThread.
type Channels struct {
	Set      *channelset.Set
	Control  *typedmsg.Handler
	Callback *typedmsg.Handler
}

// Listen is used by the accepting side (the native host process).
func Listen(logger corelog.Logger, dir *channelset.EndpointDir) (*Channels, error) {
	set := channelset.NewSet(logger, dir)

	control, err := acceptTyped(logger, set, ChannelControl, ControlMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelControl, control)

	callback, err := acceptTyped(logger, set, ChannelCallback, CallbackMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelCallback, callback)

	return &Channels{Set: set, Control: control, Callback: callback}, nil
}

// Dial is used by the connecting side (the foreign worker process).
func Dial(logger corelog.Logger, dir *channelset.EndpointDir) (*Channels, error) {
	set := channelset.NewSet(logger, dir)

	control, err := dialTyped(logger, set, ChannelControl, ControlMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelControl, control)

	callback, err := dialTyped(logger, set, ChannelCallback, CallbackMessageSet())
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Register(ChannelCallback, callback)

	return &Channels{Set: set, Control: control, Callback: callback}, nil
}

// Close tears down every channel in the set. Idempotent.
func (c *Channels) Close() error {
	return c.Set.Close()
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
