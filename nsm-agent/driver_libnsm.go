//go:build libnsm && cgo

package main

import (
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/libnsm"
)

// defaultDriver returns the libnsm backend. libnsm always opens /dev/nsm, so path is ignored.
func defaultDriver(_ string) driver.Driver {
	return libnsm.New()
}
