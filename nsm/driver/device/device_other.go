// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build !linux

package device

import "errors"

var errUnsupported = errors.New("the NSM device is only available on Linux")

type platformSyscalls struct{}

func (platformSyscalls) open(string) (int32, error) {
	return -1, errUnsupported
}

func (platformSyscalls) close(int32) error {
	return errUnsupported
}

func (platformSyscalls) exchange(int32, []byte, []byte) (int, error) {
	return 0, errUnsupported
}
