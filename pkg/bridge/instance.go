package bridge

import (
	"fmt"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/audiopath"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/registry"
	"github.com/sammck-go/abibridge/pkg/shm"
	"github.com/sammck-go/abibridge/pkg/socket"
)

// DemoBusLayout is the shared-buffer layout cmd/nativehost and
// cmd/foreignworker negotiate for their one demonstration instance: stereo
// in, stereo out, a 512-frame block. A real host would derive this from the
// plugin's own bus configuration (and renegotiate it through the simplec
// dialect's OpcodeSetBlockSize/OpcodeSetSampleRate, resizing the buffer via
// shm.Buffer.Resize) instead of a value fixed at process start.
func DemoBusLayout() shm.BusLayout {
	return shm.BusLayout{
		InputChannels:  []int{2},
		OutputChannels: []int{2},
		BlockSize:      512,
		Format:         shm.Float32,
	}
}

// Instance is a live plugin instance's dynamic audio-thread resources,
// returned by CreateInstance/CreateForeignInstance alongside the dialect
// proxy object registered for it. Per spec §4.4, these are opened per
// instance rather than once per worker process: the fixed channel bundle
// (control/callback/...) is shared, but every instance gets its own
// audio-thread socket and shared-memory buffer.
type Instance struct {
	ID  registry.InstanceID
	Buf *shm.Buffer
}

// destroyer is implemented by dialect proxies that have an explicit
// teardown call to tell the foreign side before the audio channel and
// registry entry disappear (e.g. simplec.Proxy.Destroy). Dialects without
// one (comiface manages lifetime through AddRef/Release; vtableext.Proxy
// has no teardown call) simply skip this step.
type destroyer interface {
	Destroy() error
}

// CreateInstance is the native-host half of spec §4.4's add_audio_thread
// flow: it registers object (the dialect's proxy for this instance) in reg,
// accepts the instance's dedicated audio-thread connection on set, creates
// a shared-memory buffer sized by layout, and wires the two into a
// NativeChannel that set now owns alongside the fixed channels. Returns the
// channel to drive Process calls through and the Instance handle needed by
// DestroyInstance.
func CreateInstance(logger corelog.Logger, set *channelset.Set, reg *registry.Registry, object interface{}, layout shm.BusLayout) (*audiopath.NativeChannel, *Instance, error) {
	id := reg.Register(object)
	name := channelset.AudioThreadChannelName(uint64(id))

	ln, err := set.ListenUnix(name)
	if err != nil {
		reg.Unregister(id)
		return nil, nil, fmt.Errorf("bridge: listening for audio-thread channel of instance %d: %w", id, err)
	}
	conn, err := ln.Accept()
	ln.Close()
	if err != nil {
		reg.Unregister(id)
		return nil, nil, fmt.Errorf("bridge: accepting audio-thread channel of instance %d: %w", id, err)
	}
	sock := socket.New(logger.Fork(name), conn)

	buf, err := shm.Create(set.Dir.Path, name, layout)
	if err != nil {
		sock.Close()
		reg.Unregister(id)
		return nil, nil, fmt.Errorf("bridge: creating shared audio buffer for instance %d: %w", id, err)
	}

	ch := audiopath.NewNativeChannel(logger.Fork(name), sock, buf)
	set.AddAudioThread(uint64(id), ch)
	if err := reg.SetState(id, registry.StateActive); err != nil {
		logger.WLogf("instance %d: %s", id, err)
	}
	return ch, &Instance{ID: id, Buf: buf}, nil
}

// DestroyInstance tears down one instance's dynamic resources, per spec
// §4.4's remove_audio_thread: it marks the registry entry terminating,
// gives the dialect proxy a chance to tell the foreign side via an optional
// Destroy call, closes and removes the audio-thread channel from set, and
// releases the shared buffer. inst.Buf is unlinked here since the native
// side is the one that called shm.Create.
func DestroyInstance(set *channelset.Set, reg *registry.Registry, inst *Instance) error {
	entry, release, ok := reg.Get(inst.ID)
	var object interface{}
	if ok {
		object = entry.Object
		release()
		if err := reg.SetState(inst.ID, registry.StateTerminating); err != nil {
			return fmt.Errorf("bridge: destroying instance %d: %w", inst.ID, err)
		}
	}

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if d, ok := object.(destroyer); ok {
		note(d.Destroy())
	}
	note(set.RemoveAudioThread(uint64(inst.ID)))
	if inst.Buf != nil {
		note(inst.Buf.Close())
		note(inst.Buf.Unlink())
	}
	reg.Unregister(inst.ID)

	if firstErr != nil {
		return fmt.Errorf("bridge: destroying instance %d: %w", inst.ID, firstErr)
	}
	return nil
}

// CreateForeignInstance is the foreign-worker half of spec §4.4's
// add_audio_thread flow: it dials the audio-thread connection the native
// side just accepted for instanceID, opens the shared buffer the native
// side created, and wires both into a ForeignChannel ready to Serve. The
// caller is expected to run Serve on a dedicated goroutine, per spec §5's
// "one thread waiting on the audio channel."
func CreateForeignInstance(logger corelog.Logger, set *channelset.Set, instanceID registry.InstanceID, layout shm.BusLayout, process audiopath.ProcessFunc) (*audiopath.ForeignChannel, *shm.Buffer, error) {
	name := channelset.AudioThreadChannelName(uint64(instanceID))

	conn, err := set.DialUnix(name)
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: dialing audio-thread channel of instance %d: %w", instanceID, err)
	}
	sock := socket.New(logger.Fork(name), conn)

	buf, err := shm.Open(set.Dir.Path, name, layout)
	if err != nil {
		sock.Close()
		return nil, nil, fmt.Errorf("bridge: opening shared audio buffer for instance %d: %w", instanceID, err)
	}

	ch := audiopath.NewForeignChannel(logger.Fork(name), sock, buf, process)
	set.AddAudioThread(uint64(instanceID), ch)
	return ch, buf, nil
}
