// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

/*
Package nsm exposes the AWS Nitro Secure Module (NSM) to Go programs.

Every operation takes the descriptor returned by [Open] and performs exactly
one round-trip to the NSM driver. Nothing is cached, retried or serialized:
a descriptor must not be used by multiple goroutines at once unless the
underlying driver allows it. The caller owns the descriptor and releases it
with [Close]; [Session] wraps a descriptor for callers that prefer a scoped
handle.

All byte slices passed in are copied before they reach the driver, and all
byte slices returned are fresh copies owned by the caller.

Failures are reported as one of three error types:

  - [*DriverError]: the device rejected the request. The message is the symbolic
    code name, e.g. "ReadOnlyIndex".
  - [*ResponseError]: the device answered with a response of the wrong kind
    or with unknown content. It matches [ErrInvalidResponse].
  - [*MarshalError]: the exchange with the device could not be marshalled.

Opening the device is the exception: [Open] returns the driver's descriptor
verbatim, including negative failure values, and never fails otherwise.
*/
package nsm

import (
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/request"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/response"
)

// Digest names accepted by [Description.Digest].
const (
	DigestSHA256 = "sha256"
	DigestSHA384 = "sha384"
	DigestSHA512 = "sha512"
)

// Optional is an optional byte string for [Client.GetAttestationDoc].
// The zero value is absent.
type Optional = request.Optional

// Some returns a present Optional holding a copy of b, even if b is empty.
func Some(b []byte) Optional {
	return request.Some(b)
}

// None returns an absent Optional.
func None() Optional {
	return request.None()
}

// FromNillable returns an absent Optional for a nil b and a present one otherwise.
func FromNillable(b []byte) Optional {
	return request.FromNillable(b)
}

// PCRDescription is the state of one PCR.
type PCRDescription struct {
	Lock bool   `json:"lock"`
	Data []byte `json:"data"`
}

// Description holds the metadata of the module.
type Description struct {
	VersionMajor uint16   `json:"version_major"`
	VersionMinor uint16   `json:"version_minor"`
	VersionPatch uint16   `json:"version_patch"`
	ModuleID     string   `json:"module_id"`
	MaxPCRs      uint16   `json:"max_pcrs"`
	LockedPCRs   []uint16 `json:"locked_pcrs"`
	// Digest is one of [DigestSHA256], [DigestSHA384] or [DigestSHA512].
	Digest string `json:"digest"`
}

// Client performs NSM operations through a driver.
// A Client holds no state besides its driver and may be shared.
type Client struct {
	drv driver.Driver
}

// New returns a Client using drv.
func New(drv driver.Driver) *Client {
	return &Client{drv: drv}
}

// Open opens the NSM device and returns its descriptor.
// A negative value indicates failure; the caller has to check.
func (c *Client) Open() int32 {
	return c.drv.Init()
}

// Init is an alias for [Client.Open].
func (c *Client) Init() int32 {
	return c.Open()
}

// Close releases fd. Closing a descriptor twice is up to the driver.
func (c *Client) Close(fd int32) {
	c.drv.Exit(fd)
}

// Exit is an alias for [Client.Close].
func (c *Client) Exit(fd int32) {
	c.Close(fd)
}

// ExtendPCR extends the PCR at index with data and returns the new PCR value.
// It fails if the PCR is locked or index is out of range.
func (c *Client) ExtendPCR(fd int32, index uint16, data []byte) ([]byte, error) {
	res, err := roundTrip[response.ExtendPCR](c.drv, fd, &request.ExtendPCR{
		Index: index,
		Data:  copyIn(data),
	})
	if err != nil {
		return nil, err
	}
	return copyOut(res.Data), nil
}

// GetPCRDescription returns the value and lock state of the PCR at index.
func (c *Client) GetPCRDescription(fd int32, index uint16) (PCRDescription, error) {
	res, err := roundTrip[response.DescribePCR](c.drv, fd, &request.DescribePCR{Index: index})
	if err != nil {
		return PCRDescription{}, err
	}
	return PCRDescription{Lock: res.Lock, Data: copyOut(res.Data)}, nil
}

// LockPCR makes the PCR at index read-only.
// It fails if the PCR is already locked or index is out of range.
func (c *Client) LockPCR(fd int32, index uint16) error {
	_, err := roundTrip[response.LockPCR](c.drv, fd, &request.LockPCR{Index: index})
	return err
}

// LockPCRs makes every PCR with an index lower than rng read-only.
func (c *Client) LockPCRs(fd int32, rng uint16) error {
	_, err := roundTrip[response.LockPCRs](c.drv, fd, &request.LockPCRs{Range: rng})
	return err
}

// GetDescription returns the metadata of the module.
func (c *Client) GetDescription(fd int32) (Description, error) {
	res, err := roundTrip[response.DescribeNSM](c.drv, fd, &request.DescribeNSM{})
	if err != nil {
		return Description{}, err
	}

	digest, ok := digestName(res.Digest)
	if !ok {
		return Description{}, &ResponseError{
			Request:  request.KindDescribeNSM,
			Response: res.Kind(),
			Detail:   "unknown digest " + string(res.Digest),
		}
	}

	return Description{
		VersionMajor: res.VersionMajor,
		VersionMinor: res.VersionMinor,
		VersionPatch: res.VersionPatch,
		ModuleID:     res.ModuleID,
		MaxPCRs:      res.MaxPCRs,
		LockedPCRs:   append([]uint16{}, res.LockedPCRs...),
		Digest:       digest,
	}, nil
}

// GetAttestationDoc requests an attestation document binding the given values.
// Absent values are omitted from the request, which is different from sending them empty.
func (c *Client) GetAttestationDoc(fd int32, userData, nonce, publicKey Optional) ([]byte, error) {
	res, err := roundTrip[response.Attestation](c.drv, fd, &request.Attestation{
		UserData:  copyOptional(userData),
		Nonce:     copyOptional(nonce),
		PublicKey: copyOptional(publicKey),
	})
	if err != nil {
		return nil, err
	}
	return copyOut(res.Document), nil
}

// GetRandom returns entropy from the device. The length is chosen by the device.
func (c *Client) GetRandom(fd int32) ([]byte, error) {
	res, err := roundTrip[response.GetRandom](c.drv, fd, &request.GetRandom{})
	if err != nil {
		return nil, err
	}
	return copyOut(res.Random), nil
}

// roundTrip sends req and returns the response if it is of kind T.
func roundTrip[T response.Response](drv driver.Driver, fd int32, req request.Request) (T, error) {
	var zero T

	res, err := drv.Process(fd, req)
	if err != nil {
		return zero, asMarshalError(err)
	}

	switch r := res.(type) {
	case T:
		return r, nil
	case response.Error:
		if r.Code == response.Success {
			return zero, &ResponseError{Request: req.Kind(), Response: r.Kind(), Detail: "error response without error code"}
		}
		return zero, &DriverError{Code: r.Code}
	case nil:
		return zero, &ResponseError{Request: req.Kind(), Detail: "no response"}
	default:
		return zero, &ResponseError{Request: req.Kind(), Response: r.Kind()}
	}
}

func asMarshalError(err error) error {
	if _, ok := err.(*MarshalError); ok {
		return err
	}
	return &MarshalError{Op: "exchanging message with driver", Err: err}
}

func digestName(d response.Digest) (string, bool) {
	switch d {
	case response.SHA256:
		return DigestSHA256, true
	case response.SHA384:
		return DigestSHA384, true
	case response.SHA512:
		return DigestSHA512, true
	default:
		return "", false
	}
}

// copyIn copies caller-owned bytes into a buffer owned by the request.
func copyIn(b []byte) []byte {
	return append([]byte{}, b...)
}

// copyOut copies driver-owned bytes into a buffer owned by the caller.
func copyOut(b []byte) []byte {
	return append([]byte{}, b...)
}

func copyOptional(o Optional) Optional {
	b, ok := o.Bytes()
	if !ok {
		return request.None()
	}
	return request.Some(b)
}
