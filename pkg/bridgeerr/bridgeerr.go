// Package bridgeerr enumerates the error taxonomy from spec §7: transport,
// codec, plugin-load, capability-miss, lifecycle and resource errors. Each
// kind is a sentinel wrappable with fmt.Errorf("%w: ...", Kind, ...) so
// callers can classify failures with errors.Is without string matching.
package bridgeerr

import "errors"

// Kind classifies a bridge error per spec §7's taxonomy.
type Kind error

var (
	// Transport covers connection-closed, short-read and short-write
	// failures. Fails the in-flight operation; triggers receive-loop exit.
	Transport Kind = errors.New("transport error")

	// Codec covers a decode that did not consume exactly the framed
	// length. Fails the specific call; the channel is logged and closed.
	Codec Kind = errors.New("codec error")

	// PluginLoad covers the foreign worker being unable to locate or load
	// the foreign plugin binary. Surfaced before the first socket connect.
	PluginLoad Kind = errors.New("plugin load error")

	// CapabilityMiss covers a host request for an extension or interface
	// the plugin does not implement.
	CapabilityMiss Kind = errors.New("capability miss")

	// Lifecycle covers an operation issued in the wrong instance state
	// (e.g. process before activate).
	Lifecycle Kind = errors.New("lifecycle error")

	// Resource covers shared-memory mapping failures and fd/rlimit
	// exhaustion.
	Resource Kind = errors.New("resource error")
)

// Is reports whether err is (or wraps) the given Kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
