// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

/*
Package response contains the responses returned by the Nitro Secure Module.

Responses use the same externally tagged CBOR layout as requests: variants
without fields are bare text strings ("LockPCR"), all others single-entry maps
from the variant name to the body. Failures are reported in-band as the
[Error] variant carrying an [ErrorCode].
*/
package response

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind names a response variant. It equals the variant tag used on the wire.
type Kind string

// Response kinds.
const (
	KindDescribePCR Kind = "DescribePCR"
	KindExtendPCR   Kind = "ExtendPCR"
	KindLockPCR     Kind = "LockPCR"
	KindLockPCRs    Kind = "LockPCRs"
	KindDescribeNSM Kind = "DescribeNSM"
	KindAttestation Kind = "Attestation"
	KindGetRandom   Kind = "GetRandom"
	KindError       Kind = "Error"
)

// Response is one of the response variants defined in this package.
type Response interface {
	// Kind returns the variant of the response.
	Kind() Kind
	isResponse()
}

// DescribePCR holds the value and lock state of a PCR.
type DescribePCR struct {
	Lock bool   `cbor:"lock"`
	Data []byte `cbor:"data"`
}

// ExtendPCR holds the PCR value after an extend.
type ExtendPCR struct {
	Data []byte `cbor:"data"`
}

// LockPCR acknowledges a LockPCR request.
type LockPCR struct{}

// LockPCRs acknowledges a LockPCRs request.
type LockPCRs struct{}

// DescribeNSM holds the module description.
type DescribeNSM struct {
	VersionMajor uint16   `cbor:"version_major"`
	VersionMinor uint16   `cbor:"version_minor"`
	VersionPatch uint16   `cbor:"version_patch"`
	ModuleID     string   `cbor:"module_id"`
	MaxPCRs      uint16   `cbor:"max_pcrs"`
	LockedPCRs   []uint16 `cbor:"locked_pcrs"`
	Digest       Digest   `cbor:"digest"`
}

// Attestation holds a signed attestation document.
type Attestation struct {
	Document []byte `cbor:"document"`
}

// GetRandom holds device entropy.
type GetRandom struct {
	Random []byte `cbor:"random"`
}

// Error reports a failed request.
type Error struct {
	Code ErrorCode
}

func (DescribePCR) Kind() Kind { return KindDescribePCR }
func (ExtendPCR) Kind() Kind   { return KindExtendPCR }
func (LockPCR) Kind() Kind     { return KindLockPCR }
func (LockPCRs) Kind() Kind    { return KindLockPCRs }
func (DescribeNSM) Kind() Kind { return KindDescribeNSM }
func (Attestation) Kind() Kind { return KindAttestation }
func (GetRandom) Kind() Kind   { return KindGetRandom }
func (Error) Kind() Kind       { return KindError }

func (DescribePCR) isResponse() {}
func (ExtendPCR) isResponse()   {}
func (LockPCR) isResponse()     {}
func (LockPCRs) isResponse()    {}
func (DescribeNSM) isResponse() {}
func (Attestation) isResponse() {}
func (GetRandom) isResponse()   {}
func (Error) isResponse()       {}

// Digest is the digest algorithm the module uses for PCRs.
type Digest string

// Digests known to the NSM.
const (
	SHA256 Digest = "SHA256"
	SHA384 Digest = "SHA384"
	SHA512 Digest = "SHA512"
)

// ErrorCode is a failure reported by the NSM driver.
type ErrorCode string

// Error codes known to the NSM driver.
const (
	Success          ErrorCode = "Success"
	InvalidArgument  ErrorCode = "InvalidArgument"
	InvalidIndex     ErrorCode = "InvalidIndex"
	InvalidResponse  ErrorCode = "InvalidResponse"
	ReadOnlyIndex    ErrorCode = "ReadOnlyIndex"
	InvalidOperation ErrorCode = "InvalidOperation"
	BufferTooSmall   ErrorCode = "BufferTooSmall"
	InputTooLarge    ErrorCode = "InputTooLarge"
	InternalError    ErrorCode = "InternalError"
)

// ErrorCodes lists all error codes in their C ABI order.
var ErrorCodes = []ErrorCode{
	Success,
	InvalidArgument,
	InvalidIndex,
	InvalidResponse,
	ReadOnlyIndex,
	InvalidOperation,
	BufferTooSmall,
	InputTooLarge,
	InternalError,
}

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	return string(c)
}

// errUnknownVariant is returned by Decode for a well-formed message naming no known response.
var errUnknownVariant = errors.New("unknown response variant")

// Decode parses the CBOR form of a response.
func Decode(data []byte) (Response, error) {
	if len(data) == 0 {
		return nil, errors.New("empty response")
	}

	// Major type 3 is a text string: a variant without fields.
	if data[0]>>5 == 3 {
		var tag string
		if err := cbor.Unmarshal(data, &tag); err != nil {
			return nil, fmt.Errorf("decoding response tag: %w", err)
		}
		return unitVariant(Kind(tag))
	}

	var variant map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &variant); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(variant) != 1 {
		return nil, fmt.Errorf("decoding response: expected exactly one variant, got %d", len(variant))
	}

	for tag, body := range variant {
		res, err := decodeBody(Kind(tag), body)
		if err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", tag, err)
		}
		return res, nil
	}
	panic("unreachable")
}

func unitVariant(kind Kind) (Response, error) {
	switch kind {
	case KindLockPCR:
		return LockPCR{}, nil
	case KindLockPCRs:
		return LockPCRs{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownVariant, kind)
	}
}

func decodeBody(kind Kind, body cbor.RawMessage) (Response, error) {
	switch kind {
	case KindDescribePCR:
		var res DescribePCR
		err := cbor.Unmarshal(body, &res)
		return res, err
	case KindExtendPCR:
		var res ExtendPCR
		err := cbor.Unmarshal(body, &res)
		return res, err
	case KindDescribeNSM:
		var res DescribeNSM
		err := cbor.Unmarshal(body, &res)
		return res, err
	case KindAttestation:
		var res Attestation
		err := cbor.Unmarshal(body, &res)
		return res, err
	case KindGetRandom:
		var res GetRandom
		err := cbor.Unmarshal(body, &res)
		return res, err
	case KindError:
		var code string
		if err := cbor.Unmarshal(body, &code); err != nil {
			return nil, err
		}
		return Error{Code: ErrorCode(code)}, nil
	case KindLockPCR, KindLockPCRs:
		return unitVariant(kind)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownVariant, kind)
	}
}

// Encode returns the CBOR form of res.
// The NSM produces responses, so this is mostly useful for emulating a device.
func Encode(res Response) ([]byte, error) {
	switch r := res.(type) {
	case LockPCR, LockPCRs:
		return cbor.Marshal(string(r.Kind()))
	case Error:
		return cbor.Marshal(map[string]string{string(KindError): string(r.Code)})
	case nil:
		return nil, errors.New("encoding nil response")
	default:
		return cbor.Marshal(map[string]any{string(r.Kind()): r})
	}
}
