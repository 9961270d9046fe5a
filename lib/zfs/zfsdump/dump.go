package zfsdump

import (
	"fmt"
	"io"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/maps"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsprim"
)

// remapIndex applies spec.md §9's dn_type>54 remap heuristic and
// clamps the result into dmuOTInfo's range, falling back to index 0
// ("none", dumped as empty) for anything the heuristic doesn't resolve.
func remapIndex(dnType uint8) uint8 {
	remapped := zfsdmu.RemapType(dnType)
	if int(remapped) >= len(dmuOTInfo) {
		return 0
	}
	return remapped
}

// DumpObject dispatches dn to the dumper its (remapped) dn_type names
// and writes the result to w (spec.md §4.6 "Per-type dump dispatch").
// objSet is the owning object set, needed by dumpers (DSL dataset,
// znode) that must look up sibling objects.
func DumpObject(w io.Writer, objSet *zfsdmu.ObjectSet, objID uint64, dn *zfsdmu.Dnode) error {
	info := dmuOTInfo[remapIndex(dn.Header.Type)]
	switch info.cat {
	case catNone:
		_, err := fmt.Fprintf(w, "object %d: %s (empty)\n", objID, info.name)
		return err
	case catZAP:
		return dumpZAPObject(w, objID, dn, info.name)
	case catZPLDir:
		return dumpZPLDir(w, objID, dn)
	case catUint8:
		return dumpUint8(w, objID, dn)
	case catDSLDir:
		return dumpDSLDir(w, objSet, objID, dn)
	case catDSLDataset:
		return dumpDSLDataset(w, objSet, objID, dn)
	case catBpobj:
		return dumpBpobj(w, objID, dn)
	case catZnode:
		return dumpZnode(w, objSet, objID, dn)
	default:
		return dumpRaw(w, objID, dn, info.name)
	}
}

// dumpRaw hexdumps an object's bonus buffer (its data blocks are not
// read): the fallback for any DMU type spec.md doesn't name a typed
// dumper for.
func dumpRaw(w io.Writer, objID uint64, dn *zfsdmu.Dnode, typeName string) error {
	if _, err := fmt.Fprintf(w, "object %d: type=%s (no typed dumper)\n", objID, typeName); err != nil {
		return err
	}
	if len(dn.Bonus) > 0 {
		if _, err := fmt.Fprintf(w, "  bonus (%d bytes):\n", len(dn.Bonus)); err != nil {
			return err
		}
		if err := zfsprim.Hexdump(w, dn.Bonus); err != nil {
			return err
		}
	}
	return nil
}

// DumpObjectSet iterates every non-empty object in objSet and prints
// each through DumpObject (spec.md §6 "obj_id=0 enumerates objects in
// the object set").
func DumpObjectSet(w io.Writer, objSet *zfsdmu.ObjectSet) error {
	objs, err := objSet.IterObjects()
	if err != nil {
		return fmt.Errorf("zfsdump: %w", err)
	}
	for _, objID := range maps.SortedKeys(objs) {
		if err := DumpObject(w, objSet, objID, objs[objID]); err != nil {
			return fmt.Errorf("zfsdump: object %d: %w", objID, err)
		}
	}
	return nil
}
