// Package zfsblkptr decodes 128-byte block pointers and resolves the
// logical blocks they describe: checksum verification, decompression,
// and indirect-block recursion (spec.md §4.5).
package zfsblkptr

import (
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsprim"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

// DVA (Data Virtual Address) names a run of allocated space on one
// vdev: spec.md's glossary entry "DVA".
type DVA struct {
	Vdev  zfsvol.VdevID
	ASize int64 // bytes
	Offset int64 // bytes
}

// Valid reports whether this slot is an allocated DVA rather than an
// unused one (spec.md §4.5: "Retain only DVAs with asize>0").
func (d DVA) Valid() bool { return d.ASize > 0 }

func (d DVA) String() string {
	return fmt.Sprintf("%d:%#x:%#x", d.Vdev, d.Offset, d.ASize)
}

// decodeDVA unpacks one DVA from its packed (word0, word1) pair
// (spec.md glossary "DVA (Data Virtual Address)").
func decodeDVA(word0, word1 uint64) DVA {
	vdev := zfsprim.BitsGet(word0, 32, 24)
	asizeSectors := zfsprim.BitsGet(word0, 0, 24)
	offsetSectors := zfsprim.BitsGet(word1, 0, 64)
	return DVA{
		Vdev:   zfsvol.VdevID(vdev),
		ASize:  int64(asizeSectors) * 512,
		Offset: int64(offsetSectors) * 512,
	}
}
