//go:build !unix

package server

import (
	"errors"
	"net"
)

var errReusePortUnsupported = errors.New("SO_REUSEPORT is not supported on this platform")

func (s *Server) listenConfig() (net.ListenConfig, error) {
	if s.config.ReusePort {
		return net.ListenConfig{}, errReusePortUnsupported
	}
	return net.ListenConfig{}, nil
}
