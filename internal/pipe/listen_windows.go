//go:build windows

package pipe

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// address resolves a pipe name to a platform address.
// On Windows, named pipes live under the \\.\pipe\ namespace.
func address(name string) string {
	return `\\.\pipe\` + name
}

// prepare is a no-op on Windows: named pipes live in a kernel
// namespace, not the filesystem.
func prepare(_ string) error {
	return nil
}

// cleanup is a no-op on Windows; the pipe vanishes with its listener.
func cleanup(_ string) {}

// listen binds the pipe address in the listening role.
func listen(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, nil)
}

// dial attempts one connection to the pipe address.
func dial(addr string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(addr, &timeout)
}
