// Package zfsdmu decodes the DMU object layer: dnodes and the object
// sets built from them (spec.md §4.6).
package zfsdmu

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/containers"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsblkptr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

// DnodeSize is the fixed on-disk size of one dnode slot.
const DnodeSize = 512

// dnBonusOffset is where the bonus buffer starts, regardless of
// dn_nblkptr: real dnodes reserve exactly one embedded block-pointer
// slot ahead of the bonus region (spec.md §4.6 "expose bonus ... from
// offset 192").
const dnBonusOffset = 64 + zfsblkptr.Size

// Header is the decoded first 64 bytes of a dnode (spec.md §3
// "Dnode").
type Header struct {
	Type         uint8
	IndBlkShift  uint8
	NLevels      uint8
	NBlkPtr      uint8
	BonusType    uint8
	Checksum     uint8
	Compress     uint8
	Flags        uint8
	DataBlkSzSec uint16
	BonusLen     uint16
	ExtraSlots   uint8
	MaxBlkID     uint64
	Used         uint64
}

// DataBlockSize is the logical size in bytes of one data block of
// this object.
func (h Header) DataBlockSize() int64 { return int64(h.DataBlkSzSec) * 512 }

// Dnode is one decoded 512-byte object descriptor, plus the block
// cache spec.md §5 attaches to its lifetime ("A per-dnode block cache
// is keyed by block id and lives with the dnode").
type Dnode struct {
	Header Header
	BPs    []*zfsblkptr.BlockPointer
	Bonus  []byte

	topo  *zfsvol.Topology
	cache containers.LRUCache[uint64, []byte]
}

// Decode parses one 512-byte dnode slot (spec.md §4.6). Multi-byte
// header fields are native/little-endian, matching the original's
// struct.unpack("@8BHHB3xQQ32x") (_examples/original_source/zdb_obj.py:177).
func Decode(topo *zfsvol.Topology, dat []byte) (*Dnode, error) {
	if len(dat) != DnodeSize {
		return nil, fmt.Errorf("zfsdmu: %w: dnode must be exactly %d bytes, got %d", zfserr.MalformedInput, DnodeSize, len(dat))
	}
	h := Header{
		Type:         dat[0],
		IndBlkShift:  dat[1],
		NLevels:      dat[2],
		NBlkPtr:      dat[3],
		BonusType:    dat[4],
		Checksum:     dat[5],
		Compress:     dat[6],
		Flags:        dat[7],
		DataBlkSzSec: binary.LittleEndian.Uint16(dat[8:10]),
		BonusLen:     binary.LittleEndian.Uint16(dat[10:12]),
		ExtraSlots:   dat[12],
		MaxBlkID:     binary.LittleEndian.Uint64(dat[16:24]),
		Used:         binary.LittleEndian.Uint64(dat[24:32]),
	}

	dn := &Dnode{Header: h, topo: topo}

	// Keep a slot (possibly nil) per declared block pointer: the
	// read_blk indexing (spec.md §4.6) addresses this slice
	// positionally by blk_id, so a type==0 ("unallocated") pointer is
	// represented as a hole rather than removed outright.
	dn.BPs = make([]*zfsblkptr.BlockPointer, h.NBlkPtr)
	for i := 0; i < int(h.NBlkPtr); i++ {
		off := 64 + i*zfsblkptr.Size
		if off+zfsblkptr.Size > len(dat) {
			return nil, fmt.Errorf("zfsdmu: %w: dnode declares %d block pointers, past the 512-byte slot", zfserr.MalformedInput, h.NBlkPtr)
		}
		bp, err := zfsblkptr.Decode(dat[off : off+zfsblkptr.Size])
		if err != nil {
			return nil, fmt.Errorf("zfsdmu: decode block pointer %d: %w", i, err)
		}
		if !bp.Embedded && bp.Type == 0 {
			// A type-0 block pointer is unallocated (spec.md
			// §4.6); leave this slot nil. The type field only
			// exists on the normal (non-embedded) layout.
			continue
		}
		dn.BPs[i] = bp
	}

	if int(h.BonusLen) > 0 {
		end := dnBonusOffset + int(h.BonusLen)
		if end > len(dat) {
			return nil, fmt.Errorf("zfsdmu: %w: bonus buffer of %d bytes at offset %d overruns dnode", zfserr.MalformedInput, h.BonusLen, dnBonusOffset)
		}
		dn.Bonus = append([]byte(nil), dat[dnBonusOffset:end]...)
	}

	return dn, nil
}

// Topo returns the topology this dnode resolves its block pointers
// against, so a downstream decoder (e.g. zfszap, which only ever sees
// a *Dnode) can reach the shared per-subsystem debug config (spec.md
// §6) without its own copy of the topology reference.
func (d *Dnode) Topo() *zfsvol.Topology {
	if d == nil {
		return nil
	}
	return d.topo
}

// ReadBlk resolves logical data block blkID (spec.md §4.6
// "read_blk"), memoising the result for the lifetime of this Dnode.
func (d *Dnode) ReadBlk(blkID uint64) ([]byte, error) {
	if cached, ok := d.cache.Get(blkID); ok {
		return cached, nil
	}

	var out []byte
	var err error
	switch {
	case d.Header.NLevels == 0:
		out = make([]byte, d.Header.DataBlockSize())
	case d.Header.NLevels == 1:
		if blkID >= uint64(len(d.BPs)) || d.BPs[blkID] == nil {
			out = make([]byte, d.Header.DataBlockSize())
		} else {
			out, err = zfsblkptr.GetBlkData(d.topo, d.BPs[blkID], 0)
		}
	default:
		if len(d.BPs) == 0 || d.BPs[0] == nil {
			out = make([]byte, d.Header.DataBlockSize())
		} else {
			out, err = zfsblkptr.GetBlkData(d.topo, d.BPs[0], blkID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("zfsdmu: read block %d: %w", blkID, err)
	}

	d.cache.Add(blkID, out)
	return out, nil
}

// IterBlks returns the block for every id in 0..=maxblkid, in order
// (spec.md §4.6). Holes are not skipped: each one is returned as the
// zero-filled block ReadBlk gives for it.
func (d *Dnode) IterBlks() ([][]byte, error) {
	blocks := make([][]byte, 0, d.Header.MaxBlkID+1)
	for id := uint64(0); id <= d.Header.MaxBlkID; id++ {
		blk, err := d.ReadBlk(id)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}
