// Package audiopath implements the per-block audio processing protocol from
// spec §4.6: the hot path uses shared memory for samples (see pkg/shm) and
// a socket only for the per-block request/response envelope, deliberately
// bypassing pkg/typedmsg/pkg/adhocsocket since each audio channel carries
// exactly one monomorphic request/response pair and the native host
// guarantees FIFO, non-concurrent calls per instance (spec §5).
package audiopath

// ProcessLevel mirrors the dialects' process-level enumerations closely
// enough for the bridge's own bookkeeping (periodic priority sync, prefetch
// caches) without committing to any one dialect's exact encoding.
type ProcessLevel int32

const (
	ProcessLevelUnknown      ProcessLevel = 0
	ProcessLevelUserInterface ProcessLevel = 1
	ProcessLevelGeneric      ProcessLevel = 2
	ProcessLevelRealtime     ProcessLevel = 3
	ProcessLevelOffline      ProcessLevel = 4
)

// TransportInfo is the transport snapshot sent with every process request,
// prefetched so the plugin's mid-process queries are served locally
// (spec §4.6).
type TransportInfo struct {
	Tempo              float64 `cbor:"1,keyasint"`
	TimeSigNumerator   int32   `cbor:"2,keyasint"`
	TimeSigDenominator int32   `cbor:"3,keyasint"`
	SamplePosition     int64   `cbor:"4,keyasint"`
	PPQPosition        float64 `cbor:"5,keyasint"`
	Playing            bool    `cbor:"6,keyasint"`
	Looping            bool    `cbor:"7,keyasint"`
	RecordingArmed     bool    `cbor:"8,keyasint"`
}

// Event is one timestamped event (e.g. a note or parameter change) riding
// alongside a process block. Kind and Data are opaque to the core; each
// dialect's format adapter interprets them per its own event encoding.
type Event struct {
	FrameOffset int32  `cbor:"1,keyasint"`
	Kind        uint32 `cbor:"2,keyasint"`
	Data        []byte `cbor:"3,keyasint"`
}

// ProcessRequest is sent by the native side for every audio block. It
// carries no sample data -- those live in the shared buffer (pkg/shm) --
// only the envelope spec §4.6 describes.
type ProcessRequest struct {
	InstanceID           uint64         `cbor:"1,keyasint"`
	Transport            TransportInfo  `cbor:"2,keyasint"`
	FrameCount           int32          `cbor:"3,keyasint"`
	Events               []Event        `cbor:"4,keyasint"`
	ProcessLevel         ProcessLevel   `cbor:"5,keyasint"`
	RealtimePriorityHint int32          `cbor:"6,keyasint"`
}

// ProcessResponse is the foreign side's reply once it has run the plugin's
// process function against the shared buffer in place.
type ProcessResponse struct {
	Events              []Event `cbor:"1,keyasint"`
	ConstantMaskInputs  uint64  `cbor:"2,keyasint"`
	ConstantMaskOutputs uint64  `cbor:"3,keyasint"`
}
