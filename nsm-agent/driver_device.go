//go:build !(libnsm && cgo)

package main

import (
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/device"
)

func defaultDriver(path string) driver.Driver {
	return device.New(path)
}
