// Package channelset implements the per-dialect socket set from spec §4.4:
// the endpoint directory, the fixed named channels every dialect creates,
// and the dynamic per-instance audio-thread channel map.
package channelset

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
const suffixLen = 8

// TempDirEnvVar overrides the temp root used for all endpoints, per spec §6.
const TempDirEnvVar = "ABIBRIDGE_TEMP_DIR"

// ResolveTempRoot returns the directory endpoint directories are created
// under: ABIBRIDGE_TEMP_DIR if set, else XDG_RUNTIME_DIR, else os.TempDir().
func ResolveTempRoot() string {
	if v := os.Getenv(TempDirEnvVar); v != "" {
		return v
	}
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return v
	}
	return os.TempDir()
}

// randomSuffix returns an 8-character [0-9A-Za-z] suffix.
func randomSuffix() (string, error) {
	var b [suffixLen]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("channelset: generating endpoint suffix: %w", err)
	}
	var sb strings.Builder
	sb.Grow(suffixLen)
	for _, c := range b {
		sb.WriteByte(suffixAlphabet[int(c)%len(suffixAlphabet)])
	}
	return sb.String(), nil
}

// EndpointDir is the directory holding one channel socket file per named
// channel of a bridge's socket set, per spec §3/§6:
// <temp_root>/<prefix>-<plugin_name>-<8-char-suffix>/
type EndpointDir struct {
	tempRoot string
	Path     string
}

// NewEndpointDir creates a fresh endpoint directory under tempRoot, retrying
// the random suffix until the candidate path does not already exist.
func NewEndpointDir(tempRoot, prefix, pluginName string) (*EndpointDir, error) {
	for attempt := 0; attempt < 100; attempt++ {
		suffix, err := randomSuffix()
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s-%s-%s", prefix, pluginName, suffix)
		path := filepath.Join(tempRoot, name)
		if err := os.Mkdir(path, 0o700); err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("channelset: creating endpoint directory: %w", err)
		}
		return &EndpointDir{tempRoot: tempRoot, Path: path}, nil
	}
	return nil, fmt.Errorf("channelset: could not find an unused endpoint directory name under %s", tempRoot)
}

// OpenEndpointDir wraps an endpoint directory a worker was handed on its
// command line (spec §6's <endpoint_base_dir>); the worker dials into it
// but never removes it, so no tempRoot containment check is needed.
func OpenEndpointDir(path string) *EndpointDir {
	return &EndpointDir{tempRoot: filepath.Dir(path), Path: path}
}

// ChannelPath returns the socket file path for a named channel within this
// endpoint directory.
func (e *EndpointDir) ChannelPath(name string) string {
	return filepath.Join(e.Path, name+".sock")
}

// AudioThreadChannelName returns the channel name for an instance's
// dedicated audio-thread socket, per spec §4.4's naming scheme.
func AudioThreadChannelName(instanceID uint64) string {
	return fmt.Sprintf("host_plugin_audio_thread_%d", instanceID)
}

// Remove deletes the endpoint directory, but only if its path is contained
// within the temp root it was created under -- spec §3's containment
// invariant, so a misconfigured or tampered path is never recursively
// deleted.
func (e *EndpointDir) Remove() error {
	rel, err := filepath.Rel(e.tempRoot, e.Path)
	if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
		return fmt.Errorf("channelset: refusing to remove endpoint directory %q: not contained in temp root %q", e.Path, e.tempRoot)
	}
	if err := os.RemoveAll(e.Path); err != nil {
		return fmt.Errorf("channelset: removing endpoint directory: %w", err)
	}
	return nil
}
