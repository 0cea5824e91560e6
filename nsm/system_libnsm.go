// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

//go:build libnsm && cgo

package nsm

import (
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/libnsm"
)

func defaultDriver() driver.Driver {
	return libnsm.New()
}
