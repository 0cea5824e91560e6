// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package libnsm

import "github.com/edgelesssys/nitro-nsm/nsm/driver"

// copyOut returns a copy of the first n bytes of buf, the output buffer handed to the library.
// A missing buffer or a length beyond its end means the library returned garbage.
func copyOut(buf []byte, n uint64) ([]byte, error) {
	if buf == nil || n > uint64(len(buf)) {
		return nil, driver.ErrInvalidRawData
	}
	return append([]byte{}, buf[:n]...), nil
}
