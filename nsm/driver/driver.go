// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

/*
Package driver defines the boundary between the NSM client and the backends
that talk to the Nitro Secure Module.

A [Driver] is the single polymorphism point of the client: the ioctl backend in
package device and the libnsm C ABI backend in package libnsm both accept the
typed requests of package request and answer with the typed responses of
package response.
*/
package driver

import (
	"errors"

	"github.com/edgelesssys/nitro-nsm/nsm/driver/request"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/response"
)

// Size limits of the NSM interface.
const (
	// MaxOutputLen is the largest PCR value, attestation document or random
	// output a caller has to accept from the device.
	MaxOutputLen = 8192
	// MaxRequestLen is the largest encoded request the device accepts.
	MaxRequestLen = 0x1000
	// MaxResponseLen is the largest encoded response the device produces.
	MaxResponseLen = 0x3000
)

// ErrInvalidRawData is returned when a backend cannot turn the data handed back
// by the device into a response, e.g. because a reported length exceeds its buffer.
var ErrInvalidRawData = errors.New("invalid raw data")

// Driver sends requests to the NSM.
//
// Implementations perform exactly one device round-trip per Process call and
// do not serialize concurrent calls on the same descriptor.
type Driver interface {
	// Init opens the NSM device and returns its descriptor.
	// A negative value indicates failure.
	Init() int32
	// Exit releases a descriptor returned by Init.
	Exit(fd int32)
	// Process sends req to the device behind fd.
	// Device failures are reported in-band as [response.Error]. The returned
	// error is non-nil only if the backend could not marshal the exchange.
	Process(fd int32, req request.Request) (response.Response, error)
}

// MarshalError is returned when a request or response could not be converted
// between its Go form and the form the device exchanges.
type MarshalError struct {
	Op  string
	Err error
}

func (e *MarshalError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}
