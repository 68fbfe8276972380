package channelset

import (
	"fmt"
	"net"
	"sync"

	"github.com/sammck-go/abibridge/internal/corelog"
)

// Closer is satisfied by every channel kept in a Set: typedmsg.Handler,
// adhocsocket.Handler, socket.Handler and the audio-thread channels
// (audiopath.NativeChannel/ForeignChannel) all implement Close() error.
type Closer interface {
	Close() error
}

// Set is the per-dialect bundle of channels described in spec §4.4: a
// fixed set of named channels (control, callback, ...) plus a dynamic map
// of per-instance audio-thread channels, all rooted at one EndpointDir.
// Set exclusively owns its channels.
type Set struct {
	logger corelog.Logger
	Dir    *EndpointDir

	mu       sync.Mutex
	channels map[string]Closer
	closed   bool
}

// NewSet creates an empty Set rooted at dir.
func NewSet(logger corelog.Logger, dir *EndpointDir) *Set {
	return &Set{
		logger:   logger,
		Dir:      dir,
		channels: make(map[string]Closer),
	}
}

// ListenUnix listens on the unix-domain socket path for the named channel.
// Used by the accepting side of a channel.
func (s *Set) ListenUnix(name string) (net.Listener, error) {
	path := s.Dir.ChannelPath(name)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("channelset: listening on channel %q: %w", name, err)
	}
	return ln, nil
}

// DialUnix connects to the unix-domain socket path for the named channel.
// Used by the connecting side of a channel.
func (s *Set) DialUnix(name string) (net.Conn, error) {
	path := s.Dir.ChannelPath(name)
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("channelset: dialing channel %q: %w", name, err)
	}
	return conn, nil
}

// Register adds a named channel to the set. If called again with a name
// already present, the previous channel is closed first.
func (s *Set) Register(name string, ch Closer) {
	s.mu.Lock()
	old, existed := s.channels[name]
	s.channels[name] = ch
	closed := s.closed
	s.mu.Unlock()
	if existed {
		old.Close()
	}
	if closed {
		// Set already closed out from under us; close the newcomer too.
		ch.Close()
	}
}

// AddAudioThread registers ch as the audio-thread channel for instanceID,
// per spec §4.4's "add_audio_thread(instance_id)".
func (s *Set) AddAudioThread(instanceID uint64, ch Closer) {
	s.Register(AudioThreadChannelName(instanceID), ch)
}

// RemoveAudioThread closes and removes the audio-thread channel for
// instanceID, per spec §4.4's "remove_audio_thread(instance_id)". A no-op
// if no such channel is registered.
func (s *Set) RemoveAudioThread(instanceID uint64) error {
	name := AudioThreadChannelName(instanceID)
	s.mu.Lock()
	ch, ok := s.channels[name]
	delete(s.channels, name)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return ch.Close()
}

// HasAudioThread reports whether instanceID currently has a registered
// audio-thread channel, per spec §3's "audio-thread channel exists iff the
// instance has been registered for audio processing" invariant.
func (s *Set) HasAudioThread(instanceID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[AudioThreadChannelName(instanceID)]
	return ok
}

// Close closes every channel in the set unconditionally, so that any
// blocking send/receive on any channel returns. Idempotent: a second call
// is a no-op returning nil, per spec §4.4 and the idempotence property in
// §8.
func (s *Set) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	chs := make([]Closer, 0, len(s.channels))
	for _, c := range s.channels {
		chs = append(chs, c)
	}
	s.channels = make(map[string]Closer)
	s.mu.Unlock()

	var firstErr error
	for _, c := range chs {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
