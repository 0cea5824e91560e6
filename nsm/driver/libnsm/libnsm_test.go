// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build libnsm && cgo && libnsmstub

package libnsm_test

import (
	"bytes"
	"testing"

	"github.com/edgelesssys/nitro-nsm/nsm"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/libnsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Descriptors understood by libnsm_stub.c.
const (
	healthyFD       = 3
	badLengthFD     = 4
	badDigestFD     = 5
	badLockedPCRsFD = 6
	badCodeFD       = 9
)

func TestDriver(t *testing.T) {
	testCases := map[string]struct {
		fd              int32
		call            func(c *nsm.Client, fd int32) (any, error)
		want            any
		wantCode        nsm.ErrorCode
		wantMarshalErr  bool
		wantResponseErr bool
	}{
		"extend pcr": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.ExtendPCR(fd, 16, []byte("ab"))
			},
			want: []byte{16, 'a', 'b'},
		},
		"extend pcr with empty data": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.ExtendPCR(fd, 17, nil)
			},
			want: []byte{17},
		},
		"extend read only pcr": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.ExtendPCR(fd, 0, []byte("ab"))
			},
			wantCode: nsm.ReadOnlyIndex,
		},
		"extend pcr out of range": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.ExtendPCR(fd, 32, []byte("ab"))
			},
			wantCode: nsm.InvalidIndex,
		},
		"extend pcr length beyond buffer": {
			fd: badLengthFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.ExtendPCR(fd, 16, []byte("ab"))
			},
			wantMarshalErr: true,
		},
		"describe pcr": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetPCRDescription(fd, 2)
			},
			want: nsm.PCRDescription{Lock: true, Data: bytes.Repeat([]byte{2}, 48)},
		},
		"describe unlocked pcr": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetPCRDescription(fd, 20)
			},
			want: nsm.PCRDescription{Lock: false, Data: bytes.Repeat([]byte{20}, 48)},
		},
		"describe pcr out of range": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetPCRDescription(fd, 40)
			},
			wantCode: nsm.InvalidIndex,
		},
		"lock pcr": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return nil, c.LockPCR(fd, 5)
			},
		},
		"lock read only pcr": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return nil, c.LockPCR(fd, 0)
			},
			wantCode: nsm.ReadOnlyIndex,
		},
		"lock pcrs": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return nil, c.LockPCRs(fd, 16)
			},
		},
		"lock pcrs out of range": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return nil, c.LockPCRs(fd, 33)
			},
			wantCode: nsm.InvalidIndex,
		},
		"description": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetDescription(fd)
			},
			want: nsm.Description{
				VersionMajor: 1,
				VersionMinor: 0,
				VersionPatch: 2,
				ModuleID:     "i-abcdefgh",
				MaxPCRs:      32,
				LockedPCRs:   []uint16{1, 4},
				Digest:       nsm.DigestSHA384,
			},
		},
		"description with module id beyond array": {
			fd: badLengthFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetDescription(fd)
			},
			wantMarshalErr: true,
		},
		"description with too many locked pcrs": {
			fd: badLockedPCRsFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetDescription(fd)
			},
			wantMarshalErr: true,
		},
		"description with unknown digest": {
			fd: badDigestFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetDescription(fd)
			},
			wantResponseErr: true,
		},
		"attestation with absent and empty inputs": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetAttestationDoc(fd, nsm.None(), nsm.Some(nil), nsm.Some([]byte("ab")))
			},
			want: []byte{1, 0, 0, 0, 0, 2, 'a', 'b'},
		},
		"attestation with all inputs present": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetAttestationDoc(fd, nsm.Some([]byte("u")), nsm.Some([]byte("n")), nsm.Some([]byte{}))
			},
			want: []byte{0, 1, 0, 1, 0, 0, 'u', 'n'},
		},
		"attestation without inputs": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetAttestationDoc(fd, nsm.None(), nsm.None(), nsm.None())
			},
			want: []byte{1, 0, 1, 0, 1, 0},
		},
		"attestation length beyond buffer": {
			fd: badLengthFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetAttestationDoc(fd, nsm.None(), nsm.None(), nsm.None())
			},
			wantMarshalErr: true,
		},
		"random": {
			fd: healthyFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetRandom(fd)
			},
			want: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		},
		"random length beyond buffer": {
			fd: badLengthFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return c.GetRandom(fd)
			},
			wantMarshalErr: true,
		},
		"unknown error code": {
			fd: badCodeFD,
			call: func(c *nsm.Client, fd int32) (any, error) {
				return nil, c.LockPCR(fd, 5)
			},
			wantCode: nsm.ErrorCode("ErrorCode(42)"),
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			got, err := tc.call(nsm.New(libnsm.New()), tc.fd)
			switch {
			case tc.wantCode != "":
				var driverErr *nsm.DriverError
				require.ErrorAs(err, &driverErr)
				assert.Equal(tc.wantCode, driverErr.Code)
			case tc.wantMarshalErr:
				var marshalErr *nsm.MarshalError
				require.ErrorAs(err, &marshalErr)
				assert.ErrorIs(err, nsm.ErrInvalidRawData)
			case tc.wantResponseErr:
				var responseErr *nsm.ResponseError
				require.ErrorAs(err, &responseErr)
				assert.ErrorIs(err, nsm.ErrInvalidResponse)
			default:
				require.NoError(err)
				if tc.want != nil {
					assert.Equal(tc.want, got)
				}
			}
		})
	}
}

func TestDriverSession(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := nsm.New(libnsm.New())
	sess, err := client.OpenSession()
	require.NoError(err)
	assert.Equal(int32(healthyFD), sess.FD())

	buf := make([]byte, 40)
	n, err := sess.Read(buf)
	require.NoError(err)
	assert.Equal(40, n)
	assert.Equal(byte(15), buf[15])
	assert.Equal(byte(0), buf[16])

	assert.NoError(sess.Close())
}
