package worker

import (
	"fmt"
	"hash/fnv"
	"net"
	"path/filepath"
	"time"

	"github.com/jpillora/backoff"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/wire"
)

// HostRequest is sent to a group socket to ask the group worker to host one
// more plugin, per spec §6: "HostRequest { plugin_type, plugin_path,
// endpoint_base_dir, parent_pid }".
type HostRequest struct {
	PluginType      string `cbor:"1,keyasint"`
	PluginPath      string `cbor:"2,keyasint"`
	EndpointBaseDir string `cbor:"3,keyasint"`
	ParentPID       int64  `cbor:"4,keyasint"`
}

// HostResponse is the group worker's reply: its own pid.
type HostResponse struct {
	PID int64 `cbor:"1,keyasint"`
}

// GroupSocketPath computes the deterministic endpoint for a group worker
// identified by (group name, prefix hash, architecture), per spec §4.9/§6.
func GroupSocketPath(tempRoot, prefix, groupName, archTag string) string {
	return filepath.Join(tempRoot, fmt.Sprintf("%s-group-%s-%d-%s.sock", prefix, groupName, prefixHash(prefix), archTag))
}

// prefixHash is a stable numeric hash of the foreign-side prefix path, per
// spec §6.
func prefixHash(prefix string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prefix))
	return h.Sum64()
}

// ConnectGroup dials an existing group worker's socket and sends one
// HostRequest, returning its HostResponse. Used both for the initial
// connect attempt and the final retry after losing the spawn race.
func ConnectGroup(groupSocketPath string, req HostRequest) (*HostResponse, error) {
	conn, err := net.Dial("unix", groupSocketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var buf wire.Buffer
	if err := wire.WriteObject(conn, &req, &buf); err != nil {
		return nil, err
	}
	var resp HostResponse
	if err := wire.ReadObject(conn, &resp, &buf); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GroupWorkerArgs builds the command line for a detached group worker, per
// spec §6: "host group <group_socket_path>".
type GroupWorkerArgs struct {
	GroupSocketPath string
}

// CommandArgs renders the worker's argv (excluding argv[0]).
func (a GroupWorkerArgs) CommandArgs() []string {
	return []string{"host", "group", a.GroupSocketPath}
}

// EnsureGroupConfig bundles what EnsureGroup needs to spawn a group worker
// if one isn't already listening.
type EnsureGroupConfig struct {
	BinaryPath      string
	GroupSocketPath string
	ExtraEnv        []string
	Stdio           StdioMode
	LogPath         string
	MaxRetryInterval time.Duration
}

// EnsureGroup implements spec §4.9's three-step group startup sequence:
// (a) connect to an existing group worker and send the hosting request;
// (b) on connect failure, spawn a detached group worker and retry-connect
// in a backoff loop; (c) if the spawned process exits before we connect
// (we lost the bind race to another instance), try (a) one final time.
func EnsureGroup(logger corelog.Logger, cfg EnsureGroupConfig, req HostRequest) (*HostResponse, *Handle, error) {
	if resp, err := ConnectGroup(cfg.GroupSocketPath, req); err == nil {
		return resp, nil, nil
	}

	h, err := Spawn(logger, SpawnConfig{
		BinaryPath: cfg.BinaryPath,
		Args:       GroupWorkerArgs{GroupSocketPath: cfg.GroupSocketPath}.CommandArgs(),
		ExtraEnv:   cfg.ExtraEnv,
		Stdio:      cfg.Stdio,
		LogPath:    cfg.LogPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("worker: spawning group worker: %w", err)
	}

	b := &backoff.Backoff{Max: cfg.MaxRetryInterval}
	for {
		resp, cerr := ConnectGroup(cfg.GroupSocketPath, req)
		if cerr == nil {
			return resp, h, nil
		}
		select {
		case <-h.Done():
			// Our spawn exited before we connected: another instance likely
			// won the bind race. Try once more before giving up.
			resp, cerr := ConnectGroup(cfg.GroupSocketPath, req)
			if cerr == nil {
				return resp, nil, nil
			}
			return nil, nil, fmt.Errorf("worker: group worker exited before connecting: %w", h.Wait())
		case <-time.After(b.Duration()):
			logger.DLogf("retrying group socket connect (attempt %d): %s", int(b.Attempt()), cerr)
		}
	}
}
