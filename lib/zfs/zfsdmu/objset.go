package zfsdmu

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsblkptr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdebug"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

// DnodeType identifies dn_type (spec.md §3 "DMU type table").
type DnodeType uint8

// A handful of DMU types this decoder names directly; others are
// handled by the dumper dispatch table in zfsdump regardless of name.
const (
	DnodeTypeNone      DnodeType = 0
	DnodeTypeObjectSet DnodeType = 10
	DnodeTypePlainFile DnodeType = 19
)

// ObjSetType distinguishes the three kinds of object set (spec.md §3
// "Object set").
type ObjSetType uint64

const (
	ObjSetTypeNone ObjSetType = 0
	ObjSetTypeMeta ObjSetType = 1
	ObjSetTypeZFS  ObjSetType = 2
	ObjSetTypeZVOL ObjSetType = 3
)

func (t ObjSetType) String() string {
	switch t {
	case ObjSetTypeMeta:
		return "META"
	case ObjSetTypeZFS:
		return "ZFS"
	case ObjSetTypeZVOL:
		return "ZVOL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint64(t))
	}
}

const dnodesPerBlock = 32 // 16 KiB / 512 bytes

// ObjectSet is a dnode of type 10 whose first 512 bytes are the
// meta-dnode addressing every other object in the set (spec.md §3
// "Object set", §4.6).
type ObjectSet struct {
	Meta *Dnode
	topo *zfsvol.Topology

	// raw is the object set's own root block, as resolved from its
	// root block pointer: bytes 0..511 are Meta's encoding, and
	// os_type lives at the fixed offset 512+192 within this same
	// buffer (spec.md §3 "Object set").
	raw []byte
}

// OpenObjectSet resolves the object-set meta-dnode from its root
// block pointer.
func OpenObjectSet(topo *zfsvol.Topology, rootBP *zfsblkptr.BlockPointer) (*ObjectSet, error) {
	dat, err := zfsblkptr.GetBlkData(topo, rootBP, 0)
	if err != nil {
		return nil, fmt.Errorf("zfsdmu: read object set root: %w", err)
	}
	if len(dat) < DnodeSize {
		return nil, fmt.Errorf("zfsdmu: %w: object set root block is shorter than one dnode", zfserr.MalformedInput)
	}
	meta, err := Decode(topo, dat[:DnodeSize])
	if err != nil {
		return nil, fmt.Errorf("zfsdmu: decode meta-dnode: %w", err)
	}
	return &ObjectSet{Meta: meta, topo: topo, raw: dat}, nil
}

// GetObjSetType reads the u64 at data[512+192..] of the object set's
// root block (spec.md §4.6 "get_objset_type"), native/little-endian
// per the original's struct.unpack_from("@Q", ...)
// (_examples/original_source/zdb_obj.py:268).
func (os *ObjectSet) GetObjSetType() (ObjSetType, error) {
	const off = 512 + 192
	if len(os.raw) < off+8 {
		return 0, fmt.Errorf("zfsdmu: %w: object set block too short for os_type field", zfserr.MalformedInput)
	}
	return ObjSetType(binary.LittleEndian.Uint64(os.raw[off : off+8])), nil
}

// GetObject reads block obj_id/32, slices the 512-byte dnode at
// offset (obj_id%32)*512, and constructs a DMU object (spec.md §4.6
// "get_object").
func (os *ObjectSet) GetObject(objID uint64) (*Dnode, error) {
	blkID := objID / dnodesPerBlock
	slot := objID % dnodesPerBlock

	blk, err := os.Meta.ReadBlk(blkID)
	if err != nil {
		return nil, fmt.Errorf("zfsdmu: get_object(%d): %w", objID, err)
	}
	start := int(slot) * DnodeSize
	if start+DnodeSize > len(blk) {
		return nil, fmt.Errorf("zfsdmu: %w: object %d's dnode slot is out of range for its block", zfserr.MalformedInput, objID)
	}
	dn, err := Decode(os.topo, blk[start:start+DnodeSize])
	if err != nil {
		return nil, fmt.Errorf("zfsdmu: get_object(%d): %w", objID, err)
	}
	os.topo.DebugPrintf(zfsdebug.Object, 1, "get_object(%d): dn_type=%d nblkptr=%d bonuslen=%d", objID, dn.Header.Type, dn.Header.NBlkPtr, dn.Header.BonusLen)
	return dn, nil
}

// IterObjects enumerates every non-empty dnode slot reachable under
// the meta-dnode's maxblkid (spec.md §4.6 "iter_objects").
func (os *ObjectSet) IterObjects() (map[uint64]*Dnode, error) {
	out := make(map[uint64]*Dnode)
	maxObjID := (os.Meta.Header.MaxBlkID+1)*dnodesPerBlock - 1
	for objID := uint64(0); objID <= maxObjID; objID++ {
		dn, err := os.GetObject(objID)
		if err != nil {
			return nil, err
		}
		if dn.Header.Type == uint8(DnodeTypeNone) {
			continue
		}
		out[objID] = dn
	}
	return out, nil
}
