// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import "github.com/momentics/hioload-pktq/pkt"

// Packets allocates n in-flight packets of size bytes, tagging each with its
// position. It panics if the arena cannot hold them.
func Packets(a *pkt.Arena, n, size int) []pkt.Handle {
	out := make([]pkt.Handle, n)
	for i := range out {
		h, err := a.Alloc(size)
		if err != nil {
			panic(err)
		}
		a.SetTag(h, uint32(i))
		out[i] = h
	}
	return out
}
