//go:build !windows

package pipe

import (
	"net"
	"os"
	"path/filepath"
	"time"
)

// address resolves a pipe name to a platform address.
// On Unix systems, named pipes are rendered as Unix domain sockets
// under a per-user runtime directory.
func address(name string) string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "eventpipe", name+".sock")
	}
	return filepath.Join(os.TempDir(), "eventpipe", name+".sock")
}

// prepare creates the socket's parent directory and removes a stale
// socket file left behind by a previous process.
func prepare(addr string) error {
	if err := os.MkdirAll(filepath.Dir(addr), 0700); err != nil {
		return err
	}
	os.Remove(addr)
	return nil
}

// cleanup removes the socket file after the listener is closed.
func cleanup(addr string) {
	os.Remove(addr)
}

// listen binds the pipe address in the listening role.
func listen(addr string) (net.Listener, error) {
	return net.Listen("unix", addr)
}

// dial attempts one connection to the pipe address.
func dial(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", addr, timeout)
}
