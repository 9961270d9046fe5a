// Package zfszap decodes ZAP (ZFS Attribute Processor) directory
// blocks: the micro-ZAP and fat-ZAP on-disk variants (spec.md §4.7).
package zfszap

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdebug"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// Block-type dispatch words (spec.md §4.7).
const (
	blockTypeMicro = (uint64(1) << 63) | 3
	blockTypeFat   = (uint64(1) << 63) | 1
	blockTypeLeaf  = (uint64(1) << 63) | 0
)

// Entry is one decoded name/value pair. Value is either uint64 (the
// common case and always so for micro-ZAP) or []uint64 (a fat-ZAP
// entry with le_value_numints>1).
type Entry struct {
	Name  string
	Value any
}

// Decode dispatches on the first 8 bytes of blk (spec.md §4.7
// "Dispatch on the first u64") and returns every entry, in on-disk
// order. dn is the owning dnode, used by the fat-ZAP variant to read
// further leaf blocks via read_blk.
func Decode(dn *zfsdmu.Dnode, blk []byte) ([]Entry, error) {
	if len(blk) < 8 {
		return nil, fmt.Errorf("zfszap: %w: block too short for block-type word", zfserr.MalformedInput)
	}
	// Native/little-endian, matching the original's
	// struct.unpack_from("Q", buf) (_examples/original_source/zdb_zap.py:17).
	blockType := binary.LittleEndian.Uint64(blk[0:8])
	switch blockType {
	case blockTypeMicro:
		dn.Topo().DebugPrintf(zfsdebug.Zap, 1, "ZAP: micro-zap, %d bytes", len(blk))
		return decodeMicroZap(blk), nil
	case blockTypeFat:
		dn.Topo().DebugPrintf(zfsdebug.Zap, 1, "ZAP: fat-zap, %d bytes", len(blk))
		return decodeFatZap(dn, blk)
	case blockTypeLeaf:
		return nil, fmt.Errorf("zfszap: %w: a leaf-ZAP block is only meaningful nested under a fat-ZAP pointer table", zfserr.MalformedInput)
	default:
		return nil, fmt.Errorf("zfszap: %w: unrecognized block type %#x", zfserr.Unsupported, blockType)
	}
}
