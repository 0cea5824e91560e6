// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package nsm

import (
	"errors"
	"io"
	"sync"
)

// errNoEntropy is returned by [Session.Read] if the device answers with no random bytes.
var errNoEntropy = errors.New("nsm: device returned no random bytes")

/*
A Session is a descriptor bound to the client that opened it.

Like the descriptor itself, a Session must not be used by multiple goroutines
at once unless the driver allows it. The raw descriptor stays available through
[Session.FD] for diagnostics and tooling that talks to the device directly.
*/
type Session struct {
	client *Client
	fd     int32
	owned  bool

	mut    sync.Mutex
	closed bool
}

// OpenSession opens the device and returns a Session owning the descriptor.
// It returns an [*OpenError] if the driver reports a negative descriptor.
func (c *Client) OpenSession() (*Session, error) {
	fd := c.Open()
	if fd < 0 {
		return nil, &OpenError{FD: fd}
	}
	return &Session{client: c, fd: fd, owned: true}, nil
}

// WrapDescriptor returns a Session for a descriptor opened elsewhere.
// Closing the Session does not release fd.
func (c *Client) WrapDescriptor(fd int32) *Session {
	return &Session{client: c, fd: fd}
}

// FD returns the raw descriptor.
func (s *Session) FD() int32 {
	return s.fd
}

// Close releases the descriptor if the Session owns it.
// Closing a Session twice returns [ErrSessionClosed].
func (s *Session) Close() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	if s.owned {
		s.client.Close(s.fd)
	}
	return nil
}

func (s *Session) check() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// ExtendPCR calls [Client.ExtendPCR] with the session descriptor.
func (s *Session) ExtendPCR(index uint16, data []byte) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.client.ExtendPCR(s.fd, index, data)
}

// GetPCRDescription calls [Client.GetPCRDescription] with the session descriptor.
func (s *Session) GetPCRDescription(index uint16) (PCRDescription, error) {
	if err := s.check(); err != nil {
		return PCRDescription{}, err
	}
	return s.client.GetPCRDescription(s.fd, index)
}

// LockPCR calls [Client.LockPCR] with the session descriptor.
func (s *Session) LockPCR(index uint16) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.client.LockPCR(s.fd, index)
}

// LockPCRs calls [Client.LockPCRs] with the session descriptor.
func (s *Session) LockPCRs(rng uint16) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.client.LockPCRs(s.fd, rng)
}

// GetDescription calls [Client.GetDescription] with the session descriptor.
func (s *Session) GetDescription() (Description, error) {
	if err := s.check(); err != nil {
		return Description{}, err
	}
	return s.client.GetDescription(s.fd)
}

// GetAttestationDoc calls [Client.GetAttestationDoc] with the session descriptor.
func (s *Session) GetAttestationDoc(userData, nonce, publicKey Optional) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.client.GetAttestationDoc(s.fd, userData, nonce, publicKey)
}

// GetRandom calls [Client.GetRandom] with the session descriptor.
func (s *Session) GetRandom() ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.client.GetRandom(s.fd)
}

// Read fills p with entropy from the device, issuing as many GetRandom
// requests as needed. It implements [io.Reader].
func (s *Session) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		random, err := s.GetRandom()
		if err != nil {
			return n, err
		}
		if len(random) == 0 {
			return n, errNoEntropy
		}
		n += copy(p[n:], random)
	}
	return n, nil
}

var _ io.Reader = (*Session)(nil)
