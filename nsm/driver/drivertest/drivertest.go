// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

// Package drivertest provides a [driver.Driver] that records requests and answers with canned responses.
package drivertest

import (
	"sync"

	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/request"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/response"
)

// Driver is a scripted NSM driver.
// It is safe for concurrent use.
type Driver struct {
	mut sync.Mutex

	// InitFD is returned by Init.
	InitFD int32
	// Handler answers requests. If nil, Response and Err are returned for every request.
	Handler func(fd int32, req request.Request) (response.Response, error)
	// Response is returned when Handler is nil.
	Response response.Response
	// Err is returned when Handler is nil.
	Err error

	inits    int
	exited   []int32
	requests []Call
}

// Call is a request the driver received.
type Call struct {
	FD      int32
	Request request.Request
	// Encoded is the CBOR form the request would have on the wire.
	Encoded []byte
}

var _ driver.Driver = (*Driver)(nil)

// New returns a Driver handing out fd and answering every request with res.
func New(fd int32, res response.Response) *Driver {
	return &Driver{InitFD: fd, Response: res}
}

// Init implements [driver.Driver].
func (d *Driver) Init() int32 {
	d.mut.Lock()
	defer d.mut.Unlock()
	d.inits++
	return d.InitFD
}

// Exit implements [driver.Driver].
func (d *Driver) Exit(fd int32) {
	d.mut.Lock()
	defer d.mut.Unlock()
	d.exited = append(d.exited, fd)
}

// Process implements [driver.Driver].
func (d *Driver) Process(fd int32, req request.Request) (response.Response, error) {
	encoded, err := request.Encode(req)
	if err != nil {
		return nil, &driver.MarshalError{Op: "encoding request", Err: err}
	}

	d.mut.Lock()
	d.requests = append(d.requests, Call{FD: fd, Request: req, Encoded: encoded})
	handler, res, resErr := d.Handler, d.Response, d.Err
	d.mut.Unlock()

	if handler != nil {
		return handler(fd, req)
	}
	return res, resErr
}

// Inits returns how often Init was called.
func (d *Driver) Inits() int {
	d.mut.Lock()
	defer d.mut.Unlock()
	return d.inits
}

// Exited returns the descriptors passed to Exit, in call order.
func (d *Driver) Exited() []int32 {
	d.mut.Lock()
	defer d.mut.Unlock()
	return append([]int32(nil), d.exited...)
}

// Calls returns the received requests, in call order.
func (d *Driver) Calls() []Call {
	d.mut.Lock()
	defer d.mut.Unlock()
	return append([]Call(nil), d.requests...)
}

// LastCall returns the most recent request. It returns false if no request was received.
func (d *Driver) LastCall() (Call, bool) {
	d.mut.Lock()
	defer d.mut.Unlock()
	if len(d.requests) == 0 {
		return Call{}, false
	}
	return d.requests[len(d.requests)-1], true
}
