// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package nsm

import (
	"sync"

	"github.com/edgelesssys/nitro-nsm/nsm/driver"
)

var (
	systemMut    sync.RWMutex
	systemClient = New(defaultDriver())
)

// SetSystemDriver replaces the driver used by the package-level functions.
// Primarily useful for tests or for wiring a driver configured by the hosting application.
func SetSystemDriver(drv driver.Driver) {
	systemMut.Lock()
	defer systemMut.Unlock()
	systemClient = New(drv)
}

// System returns the client behind the package-level functions.
func System() *Client {
	systemMut.RLock()
	defer systemMut.RUnlock()
	return systemClient
}

// Open opens the NSM device using the system driver. See [Client.Open].
func Open() int32 { return System().Open() }

// Init is an alias for [Open].
func Init() int32 { return System().Init() }

// Close releases fd using the system driver. See [Client.Close].
func Close(fd int32) { System().Close(fd) }

// Exit is an alias for [Close].
func Exit(fd int32) { System().Exit(fd) }

// ExtendPCR calls [Client.ExtendPCR] on the system client.
func ExtendPCR(fd int32, index uint16, data []byte) ([]byte, error) {
	return System().ExtendPCR(fd, index, data)
}

// GetPCRDescription calls [Client.GetPCRDescription] on the system client.
func GetPCRDescription(fd int32, index uint16) (PCRDescription, error) {
	return System().GetPCRDescription(fd, index)
}

// LockPCR calls [Client.LockPCR] on the system client.
func LockPCR(fd int32, index uint16) error {
	return System().LockPCR(fd, index)
}

// LockPCRs calls [Client.LockPCRs] on the system client.
func LockPCRs(fd int32, rng uint16) error {
	return System().LockPCRs(fd, rng)
}

// GetDescription calls [Client.GetDescription] on the system client.
func GetDescription(fd int32) (Description, error) {
	return System().GetDescription(fd)
}

// GetAttestationDoc calls [Client.GetAttestationDoc] on the system client.
func GetAttestationDoc(fd int32, userData, nonce, publicKey Optional) ([]byte, error) {
	return System().GetAttestationDoc(fd, userData, nonce, publicKey)
}

// GetRandom calls [Client.GetRandom] on the system client.
func GetRandom(fd int32) ([]byte, error) {
	return System().GetRandom(fd)
}

// OpenSession opens a [Session] using the system driver.
func OpenSession() (*Session, error) {
	return System().OpenSession()
}

// WrapDescriptor returns a [Session] for fd using the system driver, without taking ownership of fd.
func WrapDescriptor(fd int32) *Session {
	return System().WrapDescriptor(fd)
}
