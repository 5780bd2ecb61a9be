//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package notify

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseControl lets discovery scans and controllers bind the NOTIFY port side by side
func reuseControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			sockErr = fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to control socket: %w", err)
	}
	return sockErr
}
