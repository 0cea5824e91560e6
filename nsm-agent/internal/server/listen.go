// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mdlayher/vsock"
)

// Listen opens a listener for addr, which is either vsock://PORT or tcp://HOST:PORT.
// A vsock listener accepts connections from any context ID, including the parent instance.
func Listen(addr string) (net.Listener, error) {
	network, address, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}
	switch network {
	case "vsock":
		port, _ := strconv.ParseUint(address, 10, 32)
		lis, err := vsock.Listen(uint32(port), nil)
		if err != nil {
			return nil, fmt.Errorf("listening on vsock port %d: %w", port, err)
		}
		return lis, nil
	default:
		lis, err := net.Listen("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("listening on %q: %w", address, err)
		}
		return lis, nil
	}
}

func parseAddress(addr string) (network, address string, err error) {
	network, address, ok := strings.Cut(addr, "://")
	if !ok {
		return "", "", fmt.Errorf("invalid listen address %q: expected vsock://PORT or tcp://HOST:PORT", addr)
	}
	switch network {
	case "vsock":
		if _, err := strconv.ParseUint(address, 10, 32); err != nil {
			return "", "", fmt.Errorf("invalid vsock port %q", address)
		}
	case "tcp":
		if _, _, err := net.SplitHostPort(address); err != nil {
			return "", "", fmt.Errorf("invalid TCP address %q: %w", address, err)
		}
	default:
		return "", "", fmt.Errorf("unsupported network %q in listen address %q", network, addr)
	}
	return network, address, nil
}
