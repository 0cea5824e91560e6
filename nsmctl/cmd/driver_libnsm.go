// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build libnsm && cgo

package cmd

import (
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/libnsm"
)

// defaultDriver returns the libnsm backend. libnsm always opens /dev/nsm, so path is ignored.
func defaultDriver(_ string) driver.Driver {
	return libnsm.New()
}
