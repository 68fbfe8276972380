package handshake

import (
	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/config"
	"github.com/sammck-go/abibridge/pkg/socket"
)

// ChannelName is the plain socket every dialect's channel set carries in
// addition to its own dialect-specific channels, used for exactly one
// request/response pair before any dialect traffic begins.
const ChannelName = "handshake"

// Listen is called by the native host side: it accepts the worker's one
// connection, waits for its WantsConfigurationRequest, and answers with
// opts.
func Listen(logger corelog.Logger, set *channelset.Set, opts config.Options) error {
	ln, err := set.ListenUnix(ChannelName)
	if err != nil {
		return err
	}
	conn, err := ln.Accept()
	ln.Close()
	if err != nil {
		return err
	}
	h := socket.New(logger.Fork("handshake"), conn)
	set.Register(ChannelName, h)

	var req WantsConfigurationRequest
	if err := h.Receive(&req); err != nil {
		return err
	}
	reply := Answer(req, opts)
	if reply.VersionMismatch {
		logger.WLogf("worker protocol version %d does not match host version %d", req.WorkerVersion, ProtocolVersion)
	}
	return h.Send(&reply)
}

// Dial is called by the foreign worker side: it connects to the handshake
// channel, sends its WantsConfigurationRequest, and returns the native
// side's reply.
func Dial(logger corelog.Logger, set *channelset.Set) (ConfigurationReply, error) {
	var reply ConfigurationReply
	conn, err := set.DialUnix(ChannelName)
	if err != nil {
		return reply, err
	}
	h := socket.New(logger.Fork("handshake"), conn)
	set.Register(ChannelName, h)

	req := WantsConfigurationRequest{WorkerVersion: ProtocolVersion}
	if err := h.Send(&req); err != nil {
		return reply, err
	}
	if err := h.Receive(&reply); err != nil {
		return reply, err
	}
	return reply, nil
}
