// Package zfsvol is the VDEV layer: it maps a logical block address
// (expressed as a vdev id plus an offset) onto one or more physical
// reads against backing devices, striping across RAID-Z columns where
// needed.
package zfsvol

import (
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/fmtutil"
)

// PhysicalAddr is a byte offset into a single backing device.
type PhysicalAddr int64

func (a PhysicalAddr) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'q':
		str := fmt.Sprintf("%#016x", int64(a))
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), str)
	default:
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), int64(a))
	}
}

// VdevID identifies a top-level vdev within a pool's configuration.
type VdevID uint64
