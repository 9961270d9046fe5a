package zfszap

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// fatZapMagic is zap_phys_t.zap_magic (spec.md §4.7 "FatZap").
const fatZapMagic = 0x2F52AB2AB

// fatZapHeaderLen is the 13-word (104-byte) header, word-0 (the block
// type already consumed by Decode's dispatch) included in the count.
const fatZapHeaderLen = 13 * 8

// fatZapHeader is zap_phys_t's fixed prefix. Only zt_numblks of the
// pointer-table descriptor is examined: the embedded-table variant
// (zt_numblks==0) is the only one this decoder supports (spec.md
// §4.7 "only the embedded pointer-table variant ... is supported").
type fatZapHeader struct {
	Magic      uint64
	ZtNumBlks  uint64
	NumLeafs   uint64
	NumEntries uint64
	Salt       uint64
}

// decodeFatZapHeader reads the 13-word header native/little-endian,
// matching the original's struct.unpack_from("13Q", buf)
// (_examples/original_source/zdb_zap.py:113).
func decodeFatZapHeader(blk []byte) (fatZapHeader, error) {
	if len(blk) < fatZapHeaderLen {
		return fatZapHeader{}, fmt.Errorf("zfszap: %w: fat-ZAP block shorter than its 104-byte header", zfserr.MalformedInput)
	}
	h := fatZapHeader{
		Magic:      binary.LittleEndian.Uint64(blk[8:16]),
		ZtNumBlks:  binary.LittleEndian.Uint64(blk[24:32]),
		NumLeafs:   binary.LittleEndian.Uint64(blk[64:72]),
		NumEntries: binary.LittleEndian.Uint64(blk[72:80]),
		Salt:       binary.LittleEndian.Uint64(blk[80:88]),
	}
	if h.Magic != fatZapMagic {
		return fatZapHeader{}, fmt.Errorf("zfszap: %w: fat-ZAP magic mismatch", zfserr.MalformedInput)
	}
	return h, nil
}

// decodeFatZap implements spec.md §4.7 "FatZap": the embedded pointer
// table occupies the upper half of the first block; each 8-byte slot
// names a leaf block id. Consecutive identical leaf ids are only read
// and decoded once, in their first-seen order (scenario E).
func decodeFatZap(dn *zfsdmu.Dnode, blk []byte) ([]Entry, error) {
	h, err := decodeFatZapHeader(blk)
	if err != nil {
		return nil, err
	}
	if h.ZtNumBlks != 0 {
		return nil, fmt.Errorf("zfszap: %w: only the embedded fat-ZAP pointer table is supported", zfserr.Unsupported)
	}

	half := len(blk) / 2
	table := blk[half:]
	numSlots := len(table) / 8

	var out []Entry
	var lastBlkID uint64
	haveLast := false
	for i := 0; i < numSlots; i++ {
		// Native/little-endian, matching the original's
		// struct.unpack_from("Q", ...) (_examples/original_source/zdb_zap.py:124).
		blkID := binary.LittleEndian.Uint64(table[i*8 : i*8+8])
		if haveLast && blkID == lastBlkID {
			continue
		}
		lastBlkID = blkID
		haveLast = true

		leafBlk, err := dn.ReadBlk(blkID)
		if err != nil {
			return nil, fmt.Errorf("zfszap: read leaf block %d: %w", blkID, err)
		}
		entries, err := decodeLeafZap(leafBlk)
		if err != nil {
			return nil, fmt.Errorf("zfszap: decode leaf block %d: %w", blkID, err)
		}
		out = append(out, entries...)
	}
	return out, nil
}
