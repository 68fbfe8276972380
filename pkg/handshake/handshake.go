// Package handshake implements the control-channel handshake from spec §6:
// immediately after connecting, the foreign worker issues a
// WantsConfiguration request carrying its build version over a dedicated
// handshake socket (ChannelName); the native side answers with the
// resolved configuration and, on a version mismatch, logs a warning and
// sets VersionMismatch in the reply.
package handshake

import "github.com/sammck-go/abibridge/pkg/config"

// ProtocolVersion is bumped whenever the wire envelope or a core message
// layout changes in a way that breaks compatibility between a native host
// and a foreign worker built from different trees.
const ProtocolVersion int32 = 1

const (
	tagWantsConfiguration uint32 = 1
	tagConfigurationReply uint32 = 2
)

// WantsConfigurationRequest is sent by the foreign worker over the
// handshake channel (ChannelName) as the very first message, before any
// plugin-specific traffic.
type WantsConfigurationRequest struct {
	WorkerVersion int32 `cbor:"1,keyasint"`
}

// MessageTag identifies this type within a typedmsg.MessageSet.
func (WantsConfigurationRequest) MessageTag() uint32 { return tagWantsConfiguration }

// ConfigurationReply is the native side's answer. VersionMismatch is set
// when WorkerVersion in the request didn't match ProtocolVersion. Listen
// logs the mismatch as a warning on the native side and the handshake still
// completes; Dial returns the flag to the worker, which does not act on it.
type ConfigurationReply struct {
	Options         config.Options `cbor:"1,keyasint"`
	HostVersion     int32          `cbor:"2,keyasint"`
	VersionMismatch bool           `cbor:"3,keyasint"`
}

// MessageTag identifies this type within a typedmsg.MessageSet.
func (ConfigurationReply) MessageTag() uint32 { return tagConfigurationReply }

// Answer builds the native side's reply to a WantsConfigurationRequest.
func Answer(req WantsConfigurationRequest, opts config.Options) ConfigurationReply {
	return ConfigurationReply{
		Options:         opts,
		HostVersion:     ProtocolVersion,
		VersionMismatch: req.WorkerVersion != ProtocolVersion,
	}
}
