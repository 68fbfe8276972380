// Package bridge wires the dialect-agnostic core (registry, configuration,
// worker process, channel endpoint directory) into the two compositions a
// loaded plugin actually needs: NativeCore on the native host side and
// ForeignCore on the foreign worker side. Dialect adapters
// (pkg/dialect/...) build their own channel sets against the same
// EndpointDir and register their proxies in the Registry each Core embeds.
package bridge

import (
	"fmt"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/internal/lifecycle"
	"github.com/sammck-go/abibridge/pkg/channelset"
	"github.com/sammck-go/abibridge/pkg/config"
	"github.com/sammck-go/abibridge/pkg/registry"
	"github.com/sammck-go/abibridge/pkg/rlimit"
	"github.com/sammck-go/abibridge/pkg/worker"
)

// NativeCore is the native-side composition for one loaded plugin: it owns
// the endpoint directory, the spawned (or group-shared) worker, a live
// configuration watcher, and the proxy registry dialect adapters register
// their per-instance proxies into.
type NativeCore struct {
	lifecycle.ShutdownHelper

	Logger        corelog.Logger
	Registry      *registry.Registry
	ConfigWatcher *config.Watcher
	EndpointDir   *channelset.EndpointDir

	// Worker is nil for a group-hosted plugin whose worker this NativeCore
	// did not itself spawn (another instance owns that Handle).
	Worker *worker.Handle
}

// NewNativeCore resolves configuration for pluginPath, creates the endpoint
// directory, and wires shutdown. w may be nil (group mode, shared worker
// owned elsewhere).
func NewNativeCore(logger corelog.Logger, pluginPath, prefix, tempRoot string, w *worker.Handle) (*NativeCore, error) {
	dir, err := channelset.NewEndpointDir(tempRoot, prefix, pluginPath)
	if err != nil {
		return nil, fmt.Errorf("bridge: creating endpoint directory: %w", err)
	}

	for _, warning := range rlimit.CheckAll() {
		logger.WLogf("%s is low (%d): %s", warning.Name, warning.Current, warning.Hint)
	}

	nc := &NativeCore{
		Logger:      logger,
		Registry:    registry.New(),
		EndpointDir: dir,
		Worker:      w,
	}

	cw, err := config.Watch(logger.Fork("config"), pluginPath, nil)
	if err != nil {
		dir.Remove()
		return nil, fmt.Errorf("bridge: watching configuration: %w", err)
	}
	nc.ConfigWatcher = cw
	res := cw.Current()
	for _, key := range res.UnknownKeys {
		logger.WLogf("config %s: unknown key %q", res.SourceFile, key)
	}
	for _, bad := range res.BadValues {
		logger.WLogf("config %s: bad value for %s", res.SourceFile, bad)
	}

	nc.ShutdownHelper.Init(logger, nc)
	if w != nil {
		nc.AddShutdownChild(NewNativeWorkerChild(logger.Fork("worker"), w))
	}
	return nc, nil
}

// Options returns the most recently resolved configuration.
func (nc *NativeCore) Options() config.Options {
	return nc.ConfigWatcher.Current().Options
}

// SetWorker attaches the worker handle this core owns, once it has been
// spawned (individual mode) -- unlike the w passed to NewNativeCore, this
// is the normal path, since the worker is usually not known until after the
// core and its endpoint directory already exist. It registers w as a
// shutdown child so closing nc also closes the worker's watchdog pipe.
// Group-hosted plugins whose worker this core did not spawn should leave
// Worker unset instead.
func (nc *NativeCore) SetWorker(w *worker.Handle) {
	nc.Worker = w
	nc.AddShutdownChild(NewNativeWorkerChild(nc.Logger.Fork("worker"), w))
}

// HandleOnceShutdown implements lifecycle.OnceShutdownHandler: it closes the
// configuration watcher and removes the endpoint directory. The owned
// worker handle, if any, is closed by its NativeWorkerChild once this
// returns (see AddShutdownChild in NewNativeCore).
func (nc *NativeCore) HandleOnceShutdown(completionErr error) error {
	nc.ConfigWatcher.Close()
	if err := nc.EndpointDir.Remove(); err != nil {
		nc.Logger.WLogf("removing endpoint directory: %s", err)
	}
	return completionErr
}

// NativeWorkerChild adapts a worker.Handle into a lifecycle.Child so
// NativeCore.AddShutdownChild can hold overall shutdown open until the
// spawned (or group-shared) worker's watchdog pipe is actually closed,
// instead of firing Close and moving on regardless of outcome.
type NativeWorkerChild struct {
	lifecycle.ShutdownHelper
	w *worker.Handle
}

// NewNativeWorkerChild wraps w for registration via AddShutdownChild.
func NewNativeWorkerChild(logger corelog.Logger, w *worker.Handle) *NativeWorkerChild {
	c := &NativeWorkerChild{w: w}
	c.ShutdownHelper.Init(logger, c)
	return c
}

// HandleOnceShutdown implements lifecycle.OnceShutdownHandler by closing
// the wrapped worker handle.
func (c *NativeWorkerChild) HandleOnceShutdown(completionErr error) error {
	if err := c.w.Close(); err != nil && completionErr == nil {
		completionErr = err
	}
	return completionErr
}
