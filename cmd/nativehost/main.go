// Command nativehost is a native-side demonstration entry point: given one
// plugin path and dialect, it spawns (or, in group mode, ensures) a foreign
// worker, completes the channel handshake, registers a proxy instance, and
// waits for a signal to shut everything down cleanly, exactly as a real
// plugin-hosting process would for a single loaded plugin.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/bridge"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/config"
	"github.com/sammck-go/abibridge/pkg/dialect/comiface"
	"github.com/sammck-go/abibridge/pkg/dialect/simplec"
	"github.com/sammck-go/abibridge/pkg/dialect/vtableext"
	"github.com/sammck-go/abibridge/pkg/handshake"
	"github.com/sammck-go/abibridge/pkg/shm"
	"github.com/sammck-go/abibridge/pkg/worker"
)

func main() {
	pluginType := flag.String("plugin-type", "simplec", "simplec, comiface or vtableext")
	pluginPath := flag.String("plugin-path", "", "path to the foreign plugin binary")
	prefix := flag.String("prefix", "abibridge", "endpoint directory/socket name prefix")
	workerBinary := flag.String("worker-binary", "", "path to the foreignworker binary (default: alongside this executable)")
	groupName := flag.String("group", "", "host in a shared group worker named <group>, instead of spawning a dedicated worker")
	flag.Parse()

	logger := corelog.New("nativehost", corelog.LevelInfo)

	if *pluginPath == "" {
		fmt.Fprintln(os.Stderr, "nativehost: -plugin-path is required")
		os.Exit(2)
	}
	pt, ok := bridge.ParsePluginType(*pluginType)
	if !ok {
		fmt.Fprintf(os.Stderr, "nativehost: unknown -plugin-type %q\n", *pluginType)
		os.Exit(2)
	}

	binPath, err := resolveWorkerBinary(*workerBinary)
	if err != nil {
		logger.Fatalf("locating foreignworker binary: %s", err)
	}

	tempRoot := channelset.ResolveTempRoot()
	nc, err := bridge.NewNativeCore(logger, *pluginPath, *prefix, tempRoot, nil)
	if err != nil {
		logger.Fatalf("%s", err)
	}
	defer nc.Close()

	opts := nc.Options()

	var handle *worker.Handle
	if *groupName != "" {
		groupSocketPath := worker.GroupSocketPath(tempRoot, *prefix, *groupName, runtime.GOARCH)
		resp, h, err := worker.EnsureGroup(logger.Fork("worker"), worker.EnsureGroupConfig{
			BinaryPath:       binPath,
			GroupSocketPath:  groupSocketPath,
			Stdio:            stdioMode(opts.PipesDisabled()),
			LogPath:          opts.LogFilePath(filepath.Join(tempRoot, *groupName+"-group.log")),
			MaxRetryInterval: 2 * time.Second,
		}, worker.HostRequest{
			PluginType:      string(pt),
			PluginPath:      *pluginPath,
			EndpointBaseDir: nc.EndpointDir.Path,
			ParentPID:       int64(os.Getpid()),
		})
		if err != nil {
			logger.Fatalf("ensuring group worker: %s", err)
		}
		logger.ILogf("group worker pid %d is hosting this plugin", resp.PID)
		handle = h
	} else {
		h, err := worker.SpawnIndividual(logger.Fork("worker"), binPath, worker.IndividualArgs{
			PluginType:      string(pt),
			PluginPath:      *pluginPath,
			EndpointBaseDir: nc.EndpointDir.Path,
			ParentPID:       os.Getpid(),
		}, stdioMode(opts.PipesDisabled()), opts.LogFilePath(filepath.Join(tempRoot, *prefix+"-worker.log")), nil)
		if err != nil {
			logger.Fatalf("spawning worker: %s", err)
		}
		handle = h
	}
	if handle != nil {
		nc.SetWorker(handle)
	}

	closeChannels, err := listenAndHandshake(logger, pt, nc, opts, bridge.DemoBusLayout())
	if err != nil {
		logger.Fatalf("%s", err)
	}
	defer closeChannels()

	logger.ILogf("plugin bridge up; waiting for shutdown signal")
	waitForStop(handle)
}

func resolveWorkerBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(self), "foreignworker"), nil
}

func stdioMode(disabled bool) worker.StdioMode {
	if disabled {
		return worker.StdioFile
	}
	return worker.StdioPiped
}

// listenAndHandshake accepts every fixed channel for pt, answers the
// worker's WantsConfiguration request, registers one proxy instance for it
// in the core's registry, and opens that instance's dynamic audio-thread
// channel and shared buffer (spec §4.4's add_audio_thread, driven here
// through bridge.CreateInstance rather than left for a caller that never
// arrives). It returns a closer that destroys the instance and tears down
// every accepted channel.
func listenAndHandshake(logger corelog.Logger, pt bridge.PluginType, nc *bridge.NativeCore, opts config.Options, layout shm.BusLayout) (func() error, error) {
	var closeFn func() error
	var set *channelset.Set
	var proxy interface{}
	var err error

	switch pt {
	case bridge.PluginTypeSimpleC:
		var ch *simplec.Channels
		if ch, err = simplec.Listen(logger, nc.EndpointDir); err == nil {
			closeFn = ch.Close
			set = ch.Set
			if err = handshake.Listen(logger, ch.Set, opts); err == nil {
				proxy = simplec.NewProxy(0, ch)
			}
		}
	case bridge.PluginTypeComIface:
		var ch *comiface.Channels
		if ch, err = comiface.Listen(logger, nc.EndpointDir); err == nil {
			closeFn = ch.Close
			set = ch.Set
			if err = handshake.Listen(logger, ch.Set, opts); err == nil {
				proxy = comiface.NewProxy(0, ch)
			}
		}
	case bridge.PluginTypeVTableExt:
		var ch *vtableext.Channels
		if ch, err = vtableext.Listen(logger, nc.EndpointDir); err == nil {
			closeFn = ch.Close
			set = ch.Set
			if err = handshake.Listen(logger, ch.Set, opts); err == nil {
				proxy = vtableext.NewProxy(0, ch)
			}
		}
	}
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, fmt.Errorf("connecting %s channels: %w", pt, err)
	}

	_, inst, err := bridge.CreateInstance(logger, set, nc.Registry, proxy, layout)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("creating %s instance: %w", pt, err)
	}

	return func() error {
		destroyErr := bridge.DestroyInstance(set, nc.Registry, inst)
		closeErr := closeFn()
		if destroyErr != nil {
			return destroyErr
		}
		return closeErr
	}, nil
}

// waitForStop blocks until SIGINT/SIGTERM or the worker process exits on
// its own. h is nil when an already-running group worker hosts the plugin;
// then only a signal ends the wait.
func waitForStop(h *worker.Handle) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	var workerDone <-chan struct{}
	if h != nil {
		workerDone = h.Done()
	}
	select {
	case <-sigCh:
	case <-workerDone:
	}
}
