// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build libnsm && cgo

/*
Package libnsm implements a [driver.Driver] on top of the C ABI of libnsm.

Every request is translated into one call of the matching nsm_* function.
Output parameters are backed by Go buffers of [driver.MaxOutputLen] bytes that
stay referenced for the whole call; the results are truncated to the lengths
reported by the library and copied before they are returned.
*/
package libnsm

// #include "libnsm.h"
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/request"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/response"
)

const (
	moduleIDCap   = 100
	lockedPCRsCap = 64
)

// digests maps the C enum Digest to its variant.
var digests = []response.Digest{response.SHA256, response.SHA384, response.SHA512}

// Driver calls into libnsm.
type Driver struct{}

// New returns a Driver backed by libnsm.
func New() *Driver {
	return &Driver{}
}

// Init implements [driver.Driver].
func (*Driver) Init() int32 {
	return int32(C.nsm_lib_init())
}

// Exit implements [driver.Driver].
func (*Driver) Exit(fd int32) {
	C.nsm_lib_exit(C.int32_t(fd))
}

// Process implements [driver.Driver].
func (d *Driver) Process(fd int32, req request.Request) (response.Response, error) {
	cfd := C.int32_t(fd)
	switch r := req.(type) {
	case *request.ExtendPCR:
		return d.extendPCR(cfd, r)
	case *request.DescribePCR:
		return d.describePCR(cfd, r)
	case *request.LockPCR:
		if code := C.nsm_lock_pcr(cfd, C.uint16_t(r.Index)); code != 0 {
			return errorResponse(code), nil
		}
		return response.LockPCR{}, nil
	case *request.LockPCRs:
		if code := C.nsm_lock_pcrs(cfd, C.uint16_t(r.Range)); code != 0 {
			return errorResponse(code), nil
		}
		return response.LockPCRs{}, nil
	case *request.DescribeNSM:
		return d.describeNSM(cfd)
	case *request.Attestation:
		return d.attestation(cfd, r)
	case *request.GetRandom:
		return d.getRandom(cfd)
	default:
		return nil, &driver.MarshalError{Op: "translating request", Err: fmt.Errorf("unsupported request %T", req)}
	}
}

func (*Driver) extendPCR(fd C.int32_t, r *request.ExtendPCR) (response.Response, error) {
	data, dataLen := inPtr(r.Data, true)
	pcr := make([]byte, driver.MaxOutputLen)
	pcrLen := C.uint32_t(len(pcr))

	code := C.nsm_extend_pcr(fd, C.uint16_t(r.Index), data, dataLen, outPtr(pcr), &pcrLen)
	runtime.KeepAlive(r.Data)
	runtime.KeepAlive(pcr)
	if code != 0 {
		return errorResponse(code), nil
	}

	out, err := copyOut(pcr, uint64(pcrLen))
	if err != nil {
		return nil, &driver.MarshalError{Op: "reading PCR value", Err: err}
	}
	return response.ExtendPCR{Data: out}, nil
}

func (*Driver) describePCR(fd C.int32_t, r *request.DescribePCR) (response.Response, error) {
	var lock C.bool
	pcr := make([]byte, driver.MaxOutputLen)
	pcrLen := C.uint32_t(len(pcr))

	code := C.nsm_describe_pcr(fd, C.uint16_t(r.Index), &lock, outPtr(pcr), &pcrLen)
	runtime.KeepAlive(pcr)
	if code != 0 {
		return errorResponse(code), nil
	}

	out, err := copyOut(pcr, uint64(pcrLen))
	if err != nil {
		return nil, &driver.MarshalError{Op: "reading PCR value", Err: err}
	}
	return response.DescribePCR{Lock: bool(lock), Data: out}, nil
}

func (*Driver) describeNSM(fd C.int32_t) (response.Response, error) {
	var desc C.struct_NsmDescription
	if code := C.nsm_get_description(fd, &desc); code != 0 {
		return errorResponse(code), nil
	}

	moduleID := make([]byte, moduleIDCap)
	for i := range moduleID {
		moduleID[i] = byte(desc.module_id[i])
	}
	moduleID, err := copyOut(moduleID, uint64(desc.module_id_len))
	if err != nil {
		return nil, &driver.MarshalError{Op: "reading module ID", Err: err}
	}

	if desc.locked_pcrs_len > lockedPCRsCap {
		return nil, &driver.MarshalError{Op: "reading locked PCRs", Err: driver.ErrInvalidRawData}
	}
	locked := make([]uint16, int(desc.locked_pcrs_len))
	for i := range locked {
		locked[i] = uint16(desc.locked_pcrs[i])
	}

	digest := response.Digest(fmt.Sprintf("Digest(%d)", int(desc.digest)))
	if d := int(desc.digest); d >= 0 && d < len(digests) {
		digest = digests[d]
	}

	return response.DescribeNSM{
		VersionMajor: uint16(desc.version_major),
		VersionMinor: uint16(desc.version_minor),
		VersionPatch: uint16(desc.version_patch),
		ModuleID:     string(moduleID),
		MaxPCRs:      uint16(desc.max_pcrs),
		LockedPCRs:   locked,
		Digest:       digest,
	}, nil
}

func (*Driver) attestation(fd C.int32_t, r *request.Attestation) (response.Response, error) {
	userData, userOK := r.UserData.Bytes()
	nonce, nonceOK := r.Nonce.Bytes()
	publicKey, publicKeyOK := r.PublicKey.Bytes()

	userPtr, userLen := inPtr(userData, userOK)
	noncePtr, nonceLen := inPtr(nonce, nonceOK)
	publicKeyPtr, publicKeyLen := inPtr(publicKey, publicKeyOK)

	doc := make([]byte, driver.MaxOutputLen)
	docLen := C.uint32_t(len(doc))

	code := C.nsm_get_attestation_doc(fd,
		userPtr, userLen,
		noncePtr, nonceLen,
		publicKeyPtr, publicKeyLen,
		outPtr(doc), &docLen,
	)
	runtime.KeepAlive(userData)
	runtime.KeepAlive(nonce)
	runtime.KeepAlive(publicKey)
	runtime.KeepAlive(doc)
	if code != 0 {
		return errorResponse(code), nil
	}

	out, err := copyOut(doc, uint64(docLen))
	if err != nil {
		return nil, &driver.MarshalError{Op: "reading attestation document", Err: err}
	}
	return response.Attestation{Document: out}, nil
}

func (*Driver) getRandom(fd C.int32_t) (response.Response, error) {
	buf := make([]byte, driver.MaxOutputLen)
	bufLen := C.size_t(len(buf))

	code := C.nsm_get_random(fd, outPtr(buf), &bufLen)
	runtime.KeepAlive(buf)
	if code != 0 {
		return errorResponse(code), nil
	}

	out, err := copyOut(buf, uint64(bufLen))
	if err != nil {
		return nil, &driver.MarshalError{Op: "reading random bytes", Err: err}
	}
	return response.GetRandom{Random: out}, nil
}

// emptyInput backs present inputs of length zero, which need a non-NULL pointer.
var emptyInput [1]byte

// inPtr returns the pointer and length to pass for an input.
// Absent inputs are passed as NULL, present empty ones as a valid pointer with length 0.
func inPtr(b []byte, present bool) (*C.uint8_t, C.uint32_t) {
	switch {
	case !present:
		return nil, 0
	case len(b) == 0:
		return (*C.uint8_t)(unsafe.Pointer(&emptyInput[0])), 0
	default:
		return (*C.uint8_t)(unsafe.Pointer(&b[0])), C.uint32_t(len(b))
	}
}

func outPtr(b []byte) *C.uint8_t {
	return (*C.uint8_t)(unsafe.Pointer(&b[0]))
}

func errorResponse(code C.int) response.Error {
	if int(code) < 0 || int(code) >= len(response.ErrorCodes) {
		return response.Error{Code: response.ErrorCode(fmt.Sprintf("ErrorCode(%d)", int(code)))}
	}
	return response.Error{Code: response.ErrorCodes[code]}
}
