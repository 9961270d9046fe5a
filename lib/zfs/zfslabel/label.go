// Package zfslabel decodes the per-device label region and the
// uberblock array it carries (spec.md §4.4).
package zfslabel

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsblkptr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsnvlist"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

const (
	labelSize = 256 << 10

	// nvlistRegionOff..ubArrayOff (112 KiB) holds the config nvlist.
	// Its first 4 bytes are a small header (encoding method, endian,
	// 2 reserved bytes) ahead of the XDR-encoded nvlist proper, kept
	// 4-byte aligned for the XDR stream that follows
	// (SPEC_FULL.md §5.1).
	nvlistRegionOff = 16 << 10
	nvlistHeaderLen = 4
	nvlistRegionLen = 112 << 10
	ubArrayOff      = 128 << 10
	ubSlotSize      = 1024
	ubSlotCount     = 128

	// UberblockMagic identifies a populated uberblock slot (spec.md
	// §3 "Uberblock").
	UberblockMagic = 0x00bab10c
)

// Encoding method byte (byte 0 of the NV-list region, label offset
// 16 KiB): original_source/ distinguishes
// an uncompressed NV-list region (0) from an LZJB-compressed one (1);
// LZJB is out of scope, so encoding=1 surfaces as Unsupported rather
// than being silently misparsed (SPEC_FULL.md §5.1).
const (
	EncodingXDR  = 0
	EncodingLZJB = 1
)

// Endian byte (byte 1 of the NV-list region): 0 = big-endian XDR, the only form this
// implementation decodes (SPEC_FULL.md §5.1).
const (
	EndianBig    = 0
	EndianLittle = 1
)

// Label is one decoded 256 KiB label region.
type Label struct {
	// BootHeader is the 8 KiB region between the blank prefix and the
	// NV-list; never interpreted (SPEC_FULL.md §5.1).
	BootHeader [8192]byte
	Encoding   byte
	Endian     byte
	Config     *zfsnvlist.List
	Uberblocks []Uberblock
}

// Uberblock is the root pointer of a pool at a given txg (spec.md
// glossary "uberblock").
type Uberblock struct {
	Slot      int
	Magic     uint64
	Version   uint64
	Txg       uint64
	GUIDSum   uint64
	Timestamp uint64
	RootBP    *zfsblkptr.BlockPointer

	// Reserved is the remainder of the 1024-byte slot past rootbp:
	// modern ZFS packs ub_software_version, ub_mmp_*,
	// ub_checkpoint_txg and other feature-flag fields there.
	// Spec.md's uberblock shape stops at rootbp, so this is kept
	// opaque (SPEC_FULL.md §5.1).
	Reserved []byte
}

// Valid reports whether this slot's magic identifies it as a real
// uberblock rather than unused space (spec.md §4.4: "prints only slots
// whose magic matches").
func (u Uberblock) Valid() bool { return u.Magic == UberblockMagic }

// ReadLabel reads and decodes label labelID (0 or 1; spec.md §4.4:
// "this system reads labels 0 and 1 only") from a leaf vdev.
func ReadLabel(leaf *zfsvol.Leaf, labelID int) (*Label, error) {
	if labelID != 0 && labelID != 1 {
		return nil, fmt.Errorf("zfslabel: %w: label id must be 0 or 1, got %d", zfserr.Unsupported, labelID)
	}
	off := int64(labelID) * 512
	dat, err := leaf.ReadAt(off, labelSize)
	if err != nil {
		return nil, fmt.Errorf("zfslabel: read label %d: %w", labelID, err)
	}
	return Decode(dat)
}

// Decode parses one already-read 256 KiB label region.
func Decode(dat []byte) (*Label, error) {
	if len(dat) != labelSize {
		return nil, fmt.Errorf("zfslabel: %w: label region must be exactly %d bytes, got %d", zfserr.MalformedInput, labelSize, len(dat))
	}

	label := &Label{
		Encoding: dat[nvlistRegionOff],
		Endian:   dat[nvlistRegionOff+1],
	}
	copy(label.BootHeader[:], dat[8<<10:16<<10])

	if label.Encoding != EncodingXDR {
		return nil, fmt.Errorf("zfslabel: %w: nvlist encoding method %d", zfserr.Unsupported, label.Encoding)
	}
	if label.Endian != EndianBig {
		return nil, fmt.Errorf("zfslabel: %w: nvlist endianness %d", zfserr.Unsupported, label.Endian)
	}

	nvRegion := dat[nvlistRegionOff+nvlistHeaderLen : nvlistRegionOff+nvlistRegionLen]
	cfg, _, err := zfsnvlist.Decode(nvRegion)
	if err != nil {
		return nil, fmt.Errorf("zfslabel: decode config nvlist: %w", err)
	}
	label.Config = cfg

	ubRegion := dat[ubArrayOff : ubArrayOff+ubSlotCount*ubSlotSize]
	for slot := 0; slot < ubSlotCount; slot++ {
		slotDat := ubRegion[slot*ubSlotSize : (slot+1)*ubSlotSize]
		ub, err := decodeUberblock(slot, slotDat)
		if err != nil {
			return nil, fmt.Errorf("zfslabel: decode uberblock slot %d: %w", slot, err)
		}
		label.Uberblocks = append(label.Uberblocks, ub)
	}

	return label, nil
}

// decodeUberblock reads the fixed 5-word header native/little-endian,
// matching the original's struct.unpack_from("5Q", ...)
// (_examples/original_source/zdb_label.py:97); only the NV-list config
// region is XDR big-endian.
func decodeUberblock(slot int, dat []byte) (Uberblock, error) {
	ub := Uberblock{
		Slot:      slot,
		Magic:     binary.LittleEndian.Uint64(dat[0:8]),
		Version:   binary.LittleEndian.Uint64(dat[8:16]),
		Txg:       binary.LittleEndian.Uint64(dat[16:24]),
		GUIDSum:   binary.LittleEndian.Uint64(dat[24:32]),
		Timestamp: binary.LittleEndian.Uint64(dat[32:40]),
	}
	if !ub.Valid() {
		// Unused slots are left structurally decoded but with no
		// root block pointer: the raw bytes are typically zero and
		// do not necessarily form a legal block pointer.
		return ub, nil
	}
	bp, err := zfsblkptr.Decode(dat[40 : 40+zfsblkptr.Size])
	if err != nil {
		return Uberblock{}, fmt.Errorf("root block pointer: %w", err)
	}
	ub.RootBP = bp
	ub.Reserved = append([]byte(nil), dat[40+zfsblkptr.Size:]...)
	return ub, nil
}

// SelectLive returns the uberblock with the largest txg among valid
// (magic-matching) slots: spec.md §4.4 "the uberblock with the largest
// txg and magic match is the live root". Returns ok=false if no slot
// has a matching magic.
func (l *Label) SelectLive() (Uberblock, bool) {
	var best Uberblock
	found := false
	for _, ub := range l.Uberblocks {
		if !ub.Valid() {
			continue
		}
		if !found || ub.Txg > best.Txg {
			best = ub
			found = true
		}
	}
	return best, found
}
