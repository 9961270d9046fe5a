package zfsblkptr

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfscodec"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdebug"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsprim"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

// Compression algorithm ids (spec.md glossary "Block pointer").
const (
	CompOff = 2
	CompLZ4 = 15
)

// ChecksumFletcher4 is the only checksum algorithm this decoder
// understands (spec.md glossary: "cksum (7 bits, checksum algorithm
// id; 7=Fletcher-4 used here)").
const ChecksumFletcher4 = 7

// Size is the on-disk size of one block pointer.
const Size = 128

const maxLevel = 6

// BlockPointer is the decoded form of a 128-byte block pointer
// (spec.md §3 "Block pointer", §4.5).
type BlockPointer struct {
	Embedded bool

	DVA [3]DVA // unset (zero) slots for embedded pointers

	LSizeBytes int64
	PSizeBytes int64
	Comp       uint8
	EType      uint8 // embedded only
	Cksum      uint8 // normal only
	Level      uint8
	Type       uint8 // normal only: DMU object type
	Encrypted  bool
	Dedup      bool
	Birth      bool // "b" property bit; meaning not otherwise used by this decoder

	PhysBirthTxg uint64
	LogicalBirthTxg uint64
	Fill         uint64

	Checksum [4]uint64

	// embeddedPayload holds the 112-byte splice used to reconstruct
	// an embedded pointer's inline data (spec.md §4.5 step 2); unset
	// for normal pointers.
	embeddedPayload [112]byte
}

// Decode unpacks a 128-byte block pointer (spec.md §4.5 "Construction
// from 128 bytes").
func Decode(dat []byte) (*BlockPointer, error) {
	if len(dat) != Size {
		return nil, fmt.Errorf("zfsblkptr: %w: block pointer must be exactly %d bytes, got %d", zfserr.MalformedInput, Size, len(dat))
	}
	// Native/little-endian throughout, matching the original's
	// struct.unpack("@7Q16x7Q") (_examples/original_source/zdb_blkptr.py:40) —
	// only the XDR NV-list region is big-endian.
	var words [16]uint64
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(dat[i*8 : i*8+8])
	}

	prop := words[6]
	bp := &BlockPointer{
		Embedded: zfsprim.BitsGet(prop, 39, 1) != 0,
	}

	// Bit offsets below are taken verbatim from the original's
	// prop_offset_list (zdb_blkptr.py:51,55): bit 63=b(irth), 62=d(edup),
	// 61=x(encrypted), (56,5)=lvl, (48,8)=type, then an embedded/normal
	// split at bit 40.
	bp.Birth = zfsprim.BitsGet(prop, 63, 1) != 0
	bp.Dedup = zfsprim.BitsGet(prop, 62, 1) != 0
	bp.Encrypted = zfsprim.BitsGet(prop, 61, 1) != 0
	bp.Level = uint8(zfsprim.BitsGet(prop, 56, 5))
	bp.Type = uint8(zfsprim.BitsGet(prop, 48, 8))

	if bp.Embedded {
		bp.EType = uint8(zfsprim.BitsGet(prop, 40, 8))
		bp.Comp = uint8(zfsprim.BitsGet(prop, 32, 7))
		bp.PSizeBytes = int64(zfsprim.BitsGet(prop, 25, 7)) + 1
		bp.LSizeBytes = int64(zfsprim.BitsGet(prop, 0, 25)) + 1
	} else {
		for i := 0; i < 3; i++ {
			bp.DVA[i] = decodeDVA(words[2*i], words[2*i+1])
		}
		bp.Cksum = uint8(zfsprim.BitsGet(prop, 40, 8))
		bp.Comp = uint8(zfsprim.BitsGet(prop, 32, 7))
		bp.PSizeBytes = (int64(zfsprim.BitsGet(prop, 16, 16)) + 1) << 9
		bp.LSizeBytes = (int64(zfsprim.BitsGet(prop, 0, 16)) + 1) << 9

		bp.PhysBirthTxg = words[9]
		bp.LogicalBirthTxg = words[10]
		bp.Fill = words[11]
		for i := 0; i < 4; i++ {
			bp.Checksum[i] = words[12+i]
		}
	}

	if bp.Level > maxLevel {
		return nil, fmt.Errorf("zfsblkptr: %w: indirection level %d exceeds maximum of %d", zfserr.MalformedInput, bp.Level, maxLevel)
	}

	if bp.Embedded {
		// Splice raw bytes [0,48) ∪ [56,80) ∪ [88,128) (skipping the
		// property word and the logical-birth-txg slot) into the
		// 112-byte inline payload (spec.md §4.5 step 2), matching the
		// original's byte-slice splice verbatim
		// (get_embddata: buf[:6*8] + buf[7*8:0xa*8] + buf[0xb*8:128]) —
		// a raw copy, not a word decode, so it needs no endianness fix.
		var payload [112]byte
		n := 0
		n += copy(payload[n:], dat[0:6*8])
		n += copy(payload[n:], dat[7*8:0xa*8])
		n += copy(payload[n:], dat[0xb*8:128])
		bp.embeddedPayload = payload
	}

	return bp, nil
}

// ValidDVAs returns the DVA slots with asize>0 (spec.md §4.5:
// "Retain only DVAs with asize>0").
func (bp *BlockPointer) ValidDVAs() []DVA {
	var out []DVA
	for _, d := range bp.DVA {
		if d.Valid() {
			out = append(out, d)
		}
	}
	return out
}

// Hole reports whether this pointer describes a hole (no data ever
// written): spec.md §4.5 step 3.
func (bp *BlockPointer) Hole() bool {
	return !bp.Embedded && bp.Fill == 0
}

// GetBlkData resolves the decompressed contents of logical block
// blkID under this pointer, walking nlevels of indirection (spec.md
// §4.5 "get_blkdata").
func GetBlkData(topo *zfsvol.Topology, bp *BlockPointer, blkID uint64) ([]byte, error) {
	if bp.Encrypted {
		return nil, fmt.Errorf("zfsblkptr: %w: encrypted block pointers are not supported", zfserr.Unsupported)
	}

	if bp.Embedded {
		return decompress(bp.Comp, bp.embeddedPayload[:bp.PSizeBytes], bp.LSizeBytes)
	}

	if bp.Hole() {
		topo.DebugPrintf(zfsdebug.Blk, 1, "BlkPtr: skip empty block: L%d %d", bp.Level, blkID)
		return make([]byte, bp.LSizeBytes), nil
	}

	dvas := bp.ValidDVAs()
	if len(dvas) == 0 {
		return nil, fmt.Errorf("zfsblkptr: %w: no valid DVA to read from", zfserr.MalformedInput)
	}
	// Only the first valid DVA is consulted; ZFS normally retries an
	// alternate DVA on checksum failure. Left unchanged (spec.md §9
	// known limitation).
	dva := dvas[0]
	topo.DebugPrintf(zfsdebug.Blk, 2, "BlkPtr: L%d %s", bp.Level, dva)

	raw, err := topo.Read(dva.Vdev, dva.Offset, bp.PSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("zfsblkptr: read dva %s: %w", dva, err)
	}

	if bp.Cksum == ChecksumFletcher4 {
		sum, err := zfscodec.Fletcher4(raw)
		if err != nil {
			return nil, fmt.Errorf("zfsblkptr: checksum dva %s: %w", dva, err)
		}
		want := zfscodec.Fletcher4Sum(bp.Checksum)
		if !sum.Equal(want) {
			return nil, fmt.Errorf("zfsblkptr: dva %s: %w: have %s want %s", dva, zfserr.ChecksumMismatch, sum, want)
		}
	}

	payload, err := decompress(bp.Comp, raw, bp.LSizeBytes)
	if err != nil {
		return nil, err
	}

	if bp.Level == 0 {
		return payload, nil
	}

	iblkCnt := uint64(bp.LSizeBytes / Size)
	if iblkCnt == 0 {
		return nil, fmt.Errorf("zfsblkptr: %w: indirect block has zero-size logical block", zfserr.MalformedInput)
	}
	levelSpan := ipow(iblkCnt, uint64(bp.Level)-1)
	childIdx := blkID / levelSpan
	childOffset := childIdx * Size
	if childOffset+Size > uint64(len(payload)) {
		return nil, fmt.Errorf("zfsblkptr: %w: block id %d out of range for indirect block", zfserr.MalformedInput, blkID)
	}

	child, err := Decode(payload[childOffset : childOffset+Size])
	if err != nil {
		return nil, fmt.Errorf("zfsblkptr: decode indirect child: %w", err)
	}
	// The child pointer only spans levelSpan logical blocks, so its
	// own addressing is relative to that span, not the full blk_id
	// (spec.md §4.5 step 5 / §8 property 7).
	return GetBlkData(topo, child, blkID%levelSpan)
}

func decompress(comp uint8, payload []byte, lsizeBytes int64) ([]byte, error) {
	switch comp {
	case CompOff:
		if int64(len(payload)) < lsizeBytes {
			return nil, fmt.Errorf("zfsblkptr: %w: uncompressed payload shorter than declared lsize", zfserr.MalformedInput)
		}
		out := make([]byte, lsizeBytes)
		copy(out, payload)
		return out, nil
	case CompLZ4:
		return zfscodec.LZ4Decompress(payload, int(lsizeBytes))
	default:
		return nil, fmt.Errorf("zfsblkptr: %w: compression algorithm %d", zfserr.Unsupported, comp)
	}
}

func ipow(base, exp uint64) uint64 {
	result := uint64(1)
	for i := uint64(0); i < exp; i++ {
		result *= base
	}
	return result
}
