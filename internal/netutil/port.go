// Package netutil picks listen addresses for the HTTP binaries.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

var ErrNoAddress = errors.New("no available bind address")

// Listen binds preferred, or the first free candidate when autoFallback is
// set. The listener is returned open so the address cannot be taken between
// selection and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying candidates", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Debug("bind candidate unavailable", "addr", addr, "error", err)
			continue
		}
		return ln, nil
	}
	return nil, ErrNoAddress
}

// IsAddrAvailable reports whether addr can currently be listened on.
func IsAddrAvailable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	if err := ln.Close(); err != nil {
		slog.Debug("probe listener close failed", "addr", addr, "error", err)
	}
	return true
}
