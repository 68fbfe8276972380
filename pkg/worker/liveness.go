package worker

import (
	"fmt"
	"net"
	"os"

	"github.com/prep/socketpair"
)

// newLivenessPair creates the connected unix-domain socket pair used as a
// dead-man's switch: the native side keeps ours open for exactly as long as
// it lives, and hands theirs to the spawned worker (see procwatch's
// ParentLivenessFD / WatchParentPipe). When the native process dies --
// including a hard kill -- the kernel closes ours, and the worker's
// blocking read on its end returns immediately instead of waiting for the
// next /proc poll.
func newLivenessPair() (ours, theirs net.Conn, err error) {
	return socketpair.New("unix")
}

// fileFromConn duplicates conn's underlying fd into an *os.File suitable
// for exec.Cmd.ExtraFiles.
func fileFromConn(conn net.Conn) (*os.File, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("worker: liveness conn is %T, not *net.UnixConn", conn)
	}
	return uc.File()
}
