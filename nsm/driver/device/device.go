// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

/*
Package device implements a [driver.Driver] on top of the NSM character device.

Requests are CBOR encoded, handed to the kernel driver through a single ioctl
together with a pre-sized response buffer, and the response is decoded from the
part of the buffer the kernel reports as written.
*/
package device

import (
	"errors"

	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/request"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/response"
)

// DefaultPath is the path of the NSM device inside a Nitro Enclave.
const DefaultPath = "/dev/nsm"

// errMessageTooLarge is reported by the platform layer when the kernel rejects a message as too large.
var errMessageTooLarge = errors.New("message too large")

// Driver talks to the NSM through its character device.
// The zero value is not usable; use [New].
type Driver struct {
	path string
	sys  syscalls
}

// syscalls is the platform layer the driver runs on.
type syscalls interface {
	open(path string) (int32, error)
	close(fd int32) error
	// exchange issues the NSM ioctl and returns the number of response bytes written.
	exchange(fd int32, req, res []byte) (int, error)
}

// New returns a Driver for the NSM device at path.
// An empty path selects [DefaultPath].
func New(path string) *Driver {
	if path == "" {
		path = DefaultPath
	}
	return &Driver{path: path, sys: platformSyscalls{}}
}

// Path returns the device path the driver opens.
func (d *Driver) Path() string {
	return d.path
}

// Init implements [driver.Driver]. It returns -1 if the device cannot be opened.
func (d *Driver) Init() int32 {
	fd, err := d.sys.open(d.path)
	if err != nil {
		return -1
	}
	return fd
}

// Exit implements [driver.Driver].
func (d *Driver) Exit(fd int32) {
	_ = d.sys.close(fd)
}

// Process implements [driver.Driver].
func (d *Driver) Process(fd int32, req request.Request) (response.Response, error) {
	encoded, err := request.Encode(req)
	if err != nil {
		return nil, &driver.MarshalError{Op: "encoding request", Err: err}
	}
	if len(encoded) > driver.MaxRequestLen {
		return response.Error{Code: response.InputTooLarge}, nil
	}

	buf := make([]byte, driver.MaxResponseLen)
	n, err := d.sys.exchange(fd, encoded, buf)
	switch {
	case errors.Is(err, errMessageTooLarge):
		return response.Error{Code: response.InputTooLarge}, nil
	case err != nil:
		return response.Error{Code: response.InternalError}, nil
	case n < 0 || n > len(buf):
		return nil, &driver.MarshalError{Op: "reading response", Err: driver.ErrInvalidRawData}
	}

	res, err := response.Decode(buf[:n])
	if err != nil {
		return response.Error{Code: response.InternalError}, nil
	}
	return res, nil
}
