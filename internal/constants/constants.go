// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

// Package constants defines defaults such as paths and ports used by the NSM binaries.
package constants

import "os"

var version = "0.0.0-dev"

// Version is the version string embedded into binaries.
func Version() string { return version }

const (
	// DeviceEnv overrides the path of the NSM device.
	DeviceEnv = "NSM_DEVICE"
	// DefaultDevicePath is the path of the NSM device inside a Nitro Enclave.
	DefaultDevicePath = "/dev/nsm"

	// AgentDefaultListen is the default listen address of the nsm-agent.
	AgentDefaultListen = "vsock://5005"
	// AgentHealthPort is the TCP port of the nsm-agent's gRPC health server.
	AgentHealthPort = "5006"

	// MaxRandomBytes caps the number of random bytes a single request may ask for.
	MaxRandomBytes = 1 << 20
)

// DevicePath returns the NSM device path, honoring [DeviceEnv].
func DevicePath() string {
	if path := os.Getenv(DeviceEnv); path != "" {
		return path
	}
	return DefaultDevicePath
}
