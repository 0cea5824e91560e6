// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build !(libnsm && cgo)

package cmd

import (
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/device"
)

func defaultDriver(path string) driver.Driver {
	return device.New(path)
}
