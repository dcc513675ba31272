//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package app

import "syscall"

// listenControl is a no-op where SO_REUSEPORT is unavailable
func listenControl(reusePort bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
