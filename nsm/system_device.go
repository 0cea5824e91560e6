// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build !(libnsm && cgo)

package nsm

import (
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/device"
)

func defaultDriver() driver.Driver {
	return device.New(device.DefaultPath)
}
