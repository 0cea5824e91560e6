// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build libnsm && cgo && !libnsmstub

package libnsm

// #cgo LDFLAGS: -lnsm
import "C"
