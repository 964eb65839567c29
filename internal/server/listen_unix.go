//go:build unix

package server

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func (s *Server) listenConfig() (net.ListenConfig, error) {
	var lc net.ListenConfig
	if !s.config.ReusePort {
		return lc, nil
	}

	lc.Control = func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
	return lc, nil
}
