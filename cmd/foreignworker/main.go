// Command foreignworker is the foreign-side process spawned (or shared via
// group mode) by a native host to run one ABI dialect's plugin-facing
// channels, per spec §6's worker command-line contract:
//
//	host <plugin_type> <plugin_path> <endpoint_base_dir> <parent_pid>
//	host group <group_socket_path>
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/audiopath"
	"github.com/sammck-go/abibridge/pkg/bridge"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/dialect/comiface"
	"github.com/sammck-go/abibridge/pkg/dialect/simplec"
	"github.com/sammck-go/abibridge/pkg/dialect/vtableext"
	"github.com/sammck-go/abibridge/pkg/handshake"
	"github.com/sammck-go/abibridge/pkg/procwatch"
	"github.com/sammck-go/abibridge/pkg/registry"
	"github.com/sammck-go/abibridge/pkg/wire"
	"github.com/sammck-go/abibridge/pkg/worker"
)

// groupGracePeriod is how long a group worker waits after its last hosted
// plugin exits before self-terminating, per spec §4.9 ("a few seconds, to
// let rapid scan-and-discard patterns reuse it").
const groupGracePeriod = 5 * time.Second

func main() {
	logger := corelog.New("foreignworker", corelog.LevelInfo)
	if len(os.Args) < 2 || os.Args[1] != "host" {
		fmt.Fprintln(os.Stderr, "usage: foreignworker host <plugin_type> <plugin_path> <endpoint_base_dir> <parent_pid>")
		fmt.Fprintln(os.Stderr, "       foreignworker host group <group_socket_path>")
		os.Exit(2)
	}

	args := os.Args[2:]
	if len(args) == 2 && args[0] == "group" {
		os.Exit(runGroup(logger, args[1]))
	}
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "foreignworker: wrong number of arguments for individual mode")
		os.Exit(2)
	}
	parentPID, err := strconv.Atoi(args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "foreignworker: bad parent pid %q: %s\n", args[3], err)
		os.Exit(2)
	}
	os.Exit(hostOne(logger, args[0], args[1], args[2], parentPID))
}

// hostOne dials an existing endpoint directory, performs the handshake, and
// runs one plugin instance's foreign-side core until its parent goes away
// or it is told to stop. Returns the process exit code.
func hostOne(logger corelog.Logger, pluginType, pluginPath, endpointBaseDir string, parentPID int) int {
	if _, err := os.Stat(pluginPath); err != nil {
		fmt.Fprintf(os.Stderr, "foreignworker: cannot locate plugin %q: %s\n", pluginPath, err)
		return 1
	}

	pt, ok := bridge.ParsePluginType(pluginType)
	if !ok {
		fmt.Fprintf(os.Stderr, "foreignworker: unknown plugin type %q\n", pluginType)
		return 2
	}

	dir := channelset.OpenEndpointDir(endpointBaseDir)
	fc, closeChannels, err := dialAndHandshake(logger, pt, dir, parentPID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "foreignworker: %s\n", err)
		return 1
	}
	defer closeChannels()

	waitForStopSignal(fc.ShutdownDoneChan())
	fc.Close()
	return 0
}

// dialAndHandshake connects every channel for pt, performs the
// WantsConfiguration handshake, brings up the foreign-side core wired to
// the liveness watchdogs for parentPID, and opens the instance's dynamic
// audio-thread channel and shared buffer (the dial-side counterpart of
// cmd/nativehost's bridge.CreateInstance), serving it on a dedicated
// goroutine for the life of the instance per spec §5.
func dialAndHandshake(logger corelog.Logger, pt bridge.PluginType, dir *channelset.EndpointDir, parentPID int) (*bridge.ForeignCore, func() error, error) {
	var closeFn func() error
	var set *channelset.Set
	var reply handshake.ConfigurationReply
	var err error

	switch pt {
	case bridge.PluginTypeSimpleC:
		var ch *simplec.Channels
		if ch, err = simplec.Dial(logger, dir); err == nil {
			closeFn = ch.Close
			set = ch.Set
			reply, err = handshake.Dial(logger, ch.Set)
			if err != nil {
				ch.Close()
			}
		}
	case bridge.PluginTypeComIface:
		var ch *comiface.Channels
		if ch, err = comiface.Dial(logger, dir); err == nil {
			closeFn = ch.Close
			set = ch.Set
			reply, err = handshake.Dial(logger, ch.Set)
			if err != nil {
				ch.Close()
			}
		}
	case bridge.PluginTypeVTableExt:
		var ch *vtableext.Channels
		if ch, err = vtableext.Dial(logger, dir); err == nil {
			closeFn = ch.Close
			set = ch.Set
			reply, err = handshake.Dial(logger, ch.Set)
			if err != nil {
				ch.Close()
			}
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting %s channels: %w", pt, err)
	}

	livenessFD := -1
	if !procwatch.Disabled() {
		livenessFD = procwatch.ParentLivenessFD
	}
	fc := bridge.NewForeignCore(logger.Fork(string(pt)), reply.Options, parentPID, livenessFD)

	instanceID := fc.Registry.Register(pt)
	audioCh, buf, err := bridge.CreateForeignInstance(logger, set, instanceID, bridge.DemoBusLayout(), audiopath.PassthroughProcess)
	if err != nil {
		fc.Registry.Unregister(instanceID)
		closeFn()
		fc.Close()
		return nil, nil, fmt.Errorf("opening %s audio-thread channel: %w", pt, err)
	}
	_ = fc.Registry.SetState(instanceID, registry.StateActive)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := audioCh.Serve(); err != nil {
			logger.DLogf("audio channel for instance %d stopped: %s", instanceID, err)
		}
	}()

	// fc's own shutdown now also waits for (and drives, if needed) this
	// instance's audio channel to close, rather than declaring the core
	// done the moment the main context stops.
	fc.AddShutdownChild(bridge.NewForeignInstanceChild(logger.Fork("audio"), audioCh))

	return fc, func() error {
		_ = fc.Registry.SetState(instanceID, registry.StateTerminating)
		audioErr := audioCh.Close()
		bufErr := buf.Close()
		fc.Registry.Unregister(instanceID)
		closeErr := closeFn()
		for _, e := range []error{audioErr, bufErr, closeErr} {
			if e != nil {
				return e
			}
		}
		return nil
	}, nil
}

// waitForStopSignal blocks until either the foreign core decides to shut
// down on its own (parent watchdog firing) or the process receives
// SIGINT/SIGTERM.
func waitForStopSignal(coreDone <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-coreDone:
	case <-sigCh:
	}
}

// groupState tracks how many plugins a group worker is currently hosting so
// it can self-terminate a grace period after the last one exits, per spec
// §4.9. active reaching zero arms idleTimer; a new connection arriving
// before it fires cancels it, and the timer callback rechecks active under
// mu and leaves the listener open if a plugin was acquired in the meantime.
type groupState struct {
	mu        sync.Mutex
	active    int
	idleTimer *time.Timer
	ln        net.Listener
}

func newGroupState(ln net.Listener) *groupState {
	return &groupState{ln: ln}
}

// acquire records one more hosted plugin, cancelling any pending
// self-termination timer.
func (g *groupState) acquire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active++
	if g.idleTimer != nil {
		g.idleTimer.Stop()
		g.idleTimer = nil
	}
}

// release records one fewer hosted plugin. If that was the last one, it
// arms a grace-period timer that closes the listener (ending runGroup's
// accept loop) if no new plugin arrives first.
func (g *groupState) release(logger corelog.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active--
	if g.active > 0 {
		return
	}
	logger.ILogf("group: last plugin exited, self-terminating in %s unless reused", groupGracePeriod)
	g.idleTimer = time.AfterFunc(groupGracePeriod, func() {
		g.mu.Lock()
		idle := g.active == 0
		g.mu.Unlock()
		if idle {
			g.ln.Close()
		}
	})
}

// runGroup implements "host group <group_socket_path>": it binds the group
// socket (or exits 0 if another worker already won the race), then accepts
// HostRequests, hosting each accepted plugin in its own goroutine until the
// last hosted plugin exits plus a grace period, per spec §4.9.
func runGroup(logger corelog.Logger, groupSocketPath string) int {
	ln, err := net.Listen("unix", groupSocketPath)
	if err != nil {
		// Losing the race for the group socket is not a failure, per spec §6.
		logger.ILogf("group socket %s already bound, exiting cleanly: %s", groupSocketPath, err)
		return 0
	}
	defer ln.Close()
	defer os.Remove(groupSocketPath)

	pid := int64(os.Getpid())
	logger.ILogf("group worker listening on %s (pid %d)", groupSocketPath, pid)

	state := newGroupState(ln)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveGroupConn(logger, conn, pid, state)
		}()
	}
	wg.Wait()
	return 0
}

// serveGroupConn reads one HostRequest off conn, replies with this
// process's pid, and then hosts the requested plugin for as long as its
// parent lives, updating state around the hosted lifetime so the group
// worker knows when it is safe to self-terminate.
func serveGroupConn(logger corelog.Logger, conn net.Conn, pid int64, state *groupState) {
	defer conn.Close()

	var buf wire.Buffer
	var req worker.HostRequest
	if err := wire.ReadObject(conn, &req, &buf); err != nil {
		logger.WLogf("group: reading host request: %s", err)
		return
	}
	if err := wire.WriteObject(conn, &worker.HostResponse{PID: pid}, &buf); err != nil {
		logger.WLogf("group: replying to host request: %s", err)
		return
	}

	if _, err := os.Stat(req.PluginPath); err != nil {
		logger.WLogf("group: cannot locate plugin %q: %s", req.PluginPath, err)
		return
	}
	pt, ok := bridge.ParsePluginType(req.PluginType)
	if !ok {
		logger.WLogf("group: unknown plugin type %q", req.PluginType)
		return
	}

	dir := channelset.OpenEndpointDir(req.EndpointBaseDir)
	fc, closeChannels, err := dialAndHandshake(logger, pt, dir, int(req.ParentPID))
	if err != nil {
		logger.WLogf("group: %s", err)
		return
	}
	defer closeChannels()

	state.acquire()
	defer state.release(logger)

	<-fc.ShutdownDoneChan()
	fc.Close()
}
