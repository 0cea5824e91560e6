// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

/*
Package request contains the requests understood by the Nitro Secure Module.

Every request has a CBOR form that mirrors the externally tagged enum layout the
NSM driver expects: requests without fields are encoded as a bare text string
("DescribeNSM"), all others as a single-entry map from the variant name to the
request body ({"ExtendPCR": {"index": 0, "data": h'...'}}).
*/
package request

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
)

// Kind names a request variant. It equals the variant tag used on the wire.
type Kind string

// Request kinds.
const (
	KindDescribePCR Kind = "DescribePCR"
	KindExtendPCR   Kind = "ExtendPCR"
	KindLockPCR     Kind = "LockPCR"
	KindLockPCRs    Kind = "LockPCRs"
	KindDescribeNSM Kind = "DescribeNSM"
	KindAttestation Kind = "Attestation"
	KindGetRandom   Kind = "GetRandom"
)

// Request is one of the request variants defined in this package.
type Request interface {
	// Kind returns the variant of the request.
	Kind() Kind
	isRequest()
}

// DescribePCR reads the value and lock state of one PCR.
type DescribePCR struct {
	Index uint16 `cbor:"index"`
}

// Kind implements [Request].
func (*DescribePCR) Kind() Kind { return KindDescribePCR }
func (*DescribePCR) isRequest() {}

// MarshalCBOR implements [cbor.Marshaler].
func (r *DescribePCR) MarshalCBOR() ([]byte, error) {
	type body DescribePCR
	return tagged(KindDescribePCR, (*body)(r))
}

// ExtendPCR extends the PCR at Index with Data.
type ExtendPCR struct {
	Index uint16 `cbor:"index"`
	Data  []byte `cbor:"data"`
}

// Kind implements [Request].
func (*ExtendPCR) Kind() Kind { return KindExtendPCR }
func (*ExtendPCR) isRequest() {}

// MarshalCBOR implements [cbor.Marshaler].
// A nil Data is sent as an empty byte string, since the device has no notion of absent extend data.
func (r *ExtendPCR) MarshalCBOR() ([]byte, error) {
	type body ExtendPCR
	b := body{Index: r.Index, Data: nonNil(r.Data)}
	return tagged(KindExtendPCR, &b)
}

// LockPCR makes the PCR at Index read-only.
type LockPCR struct {
	Index uint16 `cbor:"index"`
}

// Kind implements [Request].
func (*LockPCR) Kind() Kind { return KindLockPCR }
func (*LockPCR) isRequest() {}

// MarshalCBOR implements [cbor.Marshaler].
func (r *LockPCR) MarshalCBOR() ([]byte, error) {
	type body LockPCR
	return tagged(KindLockPCR, (*body)(r))
}

// LockPCRs makes all PCRs with an index lower than Range read-only.
type LockPCRs struct {
	Range uint16 `cbor:"range"`
}

// Kind implements [Request].
func (*LockPCRs) Kind() Kind { return KindLockPCRs }
func (*LockPCRs) isRequest() {}

// MarshalCBOR implements [cbor.Marshaler].
func (r *LockPCRs) MarshalCBOR() ([]byte, error) {
	type body LockPCRs
	return tagged(KindLockPCRs, (*body)(r))
}

// DescribeNSM reads the module description.
type DescribeNSM struct{}

// Kind implements [Request].
func (*DescribeNSM) Kind() Kind { return KindDescribeNSM }
func (*DescribeNSM) isRequest() {}

// MarshalCBOR implements [cbor.Marshaler].
func (*DescribeNSM) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(string(KindDescribeNSM))
}

// Attestation requests a signed attestation document.
// Each field is independently optional. Absent fields are sent as null,
// present ones as a (possibly empty) byte string.
type Attestation struct {
	UserData  Optional `cbor:"user_data"`
	Nonce     Optional `cbor:"nonce"`
	PublicKey Optional `cbor:"public_key"`
}

// Kind implements [Request].
func (*Attestation) Kind() Kind { return KindAttestation }
func (*Attestation) isRequest() {}

// MarshalCBOR implements [cbor.Marshaler].
func (r *Attestation) MarshalCBOR() ([]byte, error) {
	type body Attestation
	return tagged(KindAttestation, (*body)(r))
}

// GetRandom requests entropy from the device.
type GetRandom struct{}

// Kind implements [Request].
func (*GetRandom) Kind() Kind { return KindGetRandom }
func (*GetRandom) isRequest() {}

// MarshalCBOR implements [cbor.Marshaler].
func (*GetRandom) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(string(KindGetRandom))
}

// Encode returns the CBOR form of req.
func Encode(req Request) ([]byte, error) {
	return cbor.Marshal(req)
}

func tagged(kind Kind, body any) ([]byte, error) {
	return cbor.Marshal(map[string]any{string(kind): body})
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Optional is an optional byte string. The zero value is absent.
// Absent and present-but-empty are different values and stay different on the wire.
type Optional struct {
	data    []byte
	present bool
}

// Some returns a present Optional holding a copy of b.
// Some(nil) and Some([]byte{}) are both present and empty.
func Some(b []byte) Optional {
	return Optional{data: append([]byte{}, b...), present: true}
}

// None returns an absent Optional.
func None() Optional {
	return Optional{}
}

// FromNillable maps a nil slice to an absent Optional and any other slice,
// including an empty one, to a present Optional.
func FromNillable(b []byte) Optional {
	if b == nil {
		return None()
	}
	return Some(b)
}

// Present reports whether o holds a value.
func (o Optional) Present() bool {
	return o.present
}

// Bytes returns the held bytes and whether o is present.
// For a present Optional the returned slice is never nil.
func (o Optional) Bytes() ([]byte, bool) {
	if !o.present {
		return nil, false
	}
	return nonNil(o.data), true
}

// Equal reports whether o and other are both absent, or both present with equal content.
func (o Optional) Equal(other Optional) bool {
	if o.present != other.present {
		return false
	}
	return bytes.Equal(o.data, other.data)
}

// MarshalCBOR implements [cbor.Marshaler].
func (o Optional) MarshalCBOR() ([]byte, error) {
	if !o.present {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(nonNil(o.data))
}

// UnmarshalCBOR implements [cbor.Unmarshaler].
func (o *Optional) UnmarshalCBOR(data []byte) error {
	if bytes.Equal(data, cborNull) || bytes.Equal(data, cborUndefined) {
		*o = None()
		return nil
	}
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	*o = Some(b)
	return nil
}

var (
	cborNull      = []byte{0xf6}
	cborUndefined = []byte{0xf7}
)
