// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build linux

package device

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// message mirrors struct nsm_message of the kernel driver.
type message struct {
	request  unix.Iovec
	response unix.Iovec
}

// ioctlProcess is _IOWR(0x0A, 0, struct nsm_message).
var ioctlProcess = uintptr(0xC0000000 | uint32(unsafe.Sizeof(message{}))<<16 | 0x0A<<8)

type platformSyscalls struct{}

func (platformSyscalls) open(path string) (int32, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	return int32(fd), nil
}

func (platformSyscalls) close(fd int32) error {
	return unix.Close(int(fd))
}

func (platformSyscalls) exchange(fd int32, req, res []byte) (int, error) {
	if len(req) == 0 || len(res) == 0 {
		return 0, unix.EINVAL
	}

	var msg message
	msg.request.Base = &req[0]
	msg.request.SetLen(len(req))
	msg.response.Base = &res[0]
	msg.response.SetLen(len(res))

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlProcess, uintptr(unsafe.Pointer(&msg)))
	// The kernel writes into res through msg until the syscall returns.
	runtime.KeepAlive(&msg)
	runtime.KeepAlive(req)
	runtime.KeepAlive(res)

	switch {
	case errno == unix.EMSGSIZE:
		return 0, errMessageTooLarge
	case errno != 0:
		return 0, errno
	}
	return int(msg.response.Len), nil
}
