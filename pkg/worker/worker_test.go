package worker

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sammck-go/abibridge/internal/corelog"
	"github.com/sammck-go/abibridge/pkg/wire"
)

func testLogger() corelog.Logger {
	return corelog.New("test", corelog.LevelError)
}

func TestSpawnPipedStdioAndWait(t *testing.T) {
	h, err := Spawn(testLogger(), SpawnConfig{
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "echo hi; exit 0"},
		Stdio:      StdioPiped,
	})
	if err != nil {
		t.Fatalf("Spawn returned error: %s", err)
	}
	defer h.Close()

	if h.PID() <= 0 {
		t.Errorf("got PID=%d, expected a positive pid", h.PID())
	}

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never exited")
	}
	if err := h.Wait(); err != nil {
		t.Errorf("Wait returned error: %s", err)
	}
}

func TestSpawnFileStdio(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "worker.log")

	h, err := Spawn(testLogger(), SpawnConfig{
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "echo logged-line"},
		Stdio:      StdioFile,
		LogPath:    logPath,
	})
	if err != nil {
		t.Fatalf("Spawn returned error: %s", err)
	}
	defer h.Close()

	if err := h.Wait(); err != nil {
		t.Fatalf("Wait returned error: %s", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %s", err)
	}
	if string(data) != "logged-line\n" {
		t.Errorf("got log contents %q, expected %q", data, "logged-line\n")
	}
}

func TestSpawnNonexistentBinaryFails(t *testing.T) {
	_, err := Spawn(testLogger(), SpawnConfig{
		BinaryPath: "/no/such/binary-abibridge-test",
	})
	if err == nil {
		t.Fatal("expected an error spawning a nonexistent binary")
	}
}

func TestIndividualArgsCommandArgs(t *testing.T) {
	args := IndividualArgs{
		PluginType:      "simplec",
		PluginPath:      "/plugins/synth.so",
		EndpointBaseDir: "/tmp/ep",
		ParentPID:       1234,
	}
	got := args.CommandArgs()
	want := []string{"host", "simplec", "/plugins/synth.so", "/tmp/ep", "1234"}
	if len(got) != len(want) {
		t.Fatalf("got %v, expected %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: got %q, expected %q", i, got[i], want[i])
		}
	}
}

func TestGroupWorkerArgsCommandArgs(t *testing.T) {
	args := GroupWorkerArgs{GroupSocketPath: "/tmp/group.sock"}
	got := args.CommandArgs()
	want := []string{"host", "group", "/tmp/group.sock"}
	if len(got) != len(want) {
		t.Fatalf("got %v, expected %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: got %q, expected %q", i, got[i], want[i])
		}
	}
}

func TestGroupSocketPathIsDeterministic(t *testing.T) {
	a := GroupSocketPath("/tmp", "abibridge", "mygroup", "x86_64")
	b := GroupSocketPath("/tmp", "abibridge", "mygroup", "x86_64")
	if a != b {
		t.Errorf("expected GroupSocketPath to be deterministic, got %q and %q", a, b)
	}
	c := GroupSocketPath("/tmp", "abibridge", "othergroup", "x86_64")
	if a == c {
		t.Error("expected different group names to produce different socket paths")
	}
}

func serveOneHostRequest(t *testing.T, ln net.Listener, pid int64) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Errorf("Accept returned error: %s", err)
		return
	}
	defer conn.Close()

	var buf wire.Buffer
	var req HostRequest
	if err := wire.ReadObject(conn, &req, &buf); err != nil {
		t.Errorf("ReadObject returned error: %s", err)
		return
	}
	resp := HostResponse{PID: pid}
	if err := wire.WriteObject(conn, &resp, &buf); err != nil {
		t.Errorf("WriteObject returned error: %s", err)
	}
}

func TestConnectGroupRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "group.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listening on group socket: %s", err)
	}
	defer ln.Close()

	go serveOneHostRequest(t, ln, 555)

	resp, err := ConnectGroup(sockPath, HostRequest{
		PluginType: "simplec",
		PluginPath: "/plugins/synth.so",
	})
	if err != nil {
		t.Fatalf("ConnectGroup returned error: %s", err)
	}
	if resp.PID != 555 {
		t.Errorf("got PID=%d, expected 555", resp.PID)
	}
}

func TestEnsureGroupConnectsToExistingWorker(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "group.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listening on group socket: %s", err)
	}
	defer ln.Close()

	go serveOneHostRequest(t, ln, 777)

	resp, handle, err := EnsureGroup(testLogger(), EnsureGroupConfig{
		BinaryPath:      "/bin/sh",
		GroupSocketPath: sockPath,
		MaxRetryInterval: 50 * time.Millisecond,
	}, HostRequest{PluginType: "simplec", PluginPath: "/plugins/synth.so"})
	if err != nil {
		t.Fatalf("EnsureGroup returned error: %s", err)
	}
	if handle != nil {
		t.Error("expected no spawned handle when an existing group worker answered directly")
	}
	if resp.PID != 777 {
		t.Errorf("got PID=%d, expected 777", resp.PID)
	}
}
