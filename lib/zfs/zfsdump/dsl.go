package zfsdump

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsblkptr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
)

// dslDirFieldNames is the documented order of the 20 u64 fields
// packed into a DSL directory's bonus buffer (spec.md §4.6
// "dump_dsl_dir").
var dslDirFieldNames = [...]string{
	"creation_time",
	"head_dataset_obj",
	"parent_dir_obj",
	"origin_obj",
	"child_dir_zapobj",
	"used_bytes",
	"compressed_bytes",
	"uncompressed_bytes",
	"quota",
	"reserved",
	"props_zapobj",
	"deleg_zapobj",
	"flags",
	"used_breakdown_head",
	"used_breakdown_snap",
	"used_breakdown_child",
	"used_breakdown_childrsrv",
	"used_breakdown_refrsrv",
	"clones",
	"pad",
}

func dumpDSLDir(w io.Writer, objSet *zfsdmu.ObjectSet, objID uint64, dn *zfsdmu.Dnode) error {
	if _, err := fmt.Fprintf(w, "object %d: type=%s\n", objID, TypeName(dn.Header.Type)); err != nil {
		return err
	}
	fields, err := readU64Fields(dn.Bonus, len(dslDirFieldNames))
	if err != nil {
		return fmt.Errorf("zfsdump: dump_dsl_dir: %w", err)
	}
	for i, name := range dslDirFieldNames {
		if i >= len(fields) {
			break
		}
		if _, err := fmt.Fprintf(w, "    %s = %d\n", name, fields[i]); err != nil {
			return err
		}
	}
	// SPEC_FULL.md §7: recurse one level into the child-dir and
	// props ZAPs the bonus buffer names, the same shallow recursion
	// the original dataset dumper performs.
	for _, nested := range []struct {
		field string
		idx   int
	}{
		{"child_dir_zapobj", 4},
		{"props_zapobj", 10},
	} {
		if nested.idx >= len(fields) || fields[nested.idx] == 0 {
			continue
		}
		if err := dumpNestedZAP(w, objSet, nested.field, fields[nested.idx]); err != nil {
			return err
		}
	}
	return nil
}

// dumpNestedZAP resolves childObjID via the owning object set and
// prints its ZAP contents as "<field>: name=value" lines under the
// parent (SPEC_FULL.md §7).
func dumpNestedZAP(w io.Writer, objSet *zfsdmu.ObjectSet, field string, childObjID uint64) error {
	if objSet == nil {
		return nil
	}
	child, err := objSet.GetObject(childObjID)
	if err != nil {
		return fmt.Errorf("zfsdump: %s: %w", field, err)
	}
	entries, err := readZAP(child)
	if err != nil {
		return fmt.Errorf("zfsdump: %s: %w", field, err)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "    %s: %s=%v\n", field, e.Name, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func dumpDSLDataset(w io.Writer, objSet *zfsdmu.ObjectSet, objID uint64, dn *zfsdmu.Dnode) error {
	if _, err := fmt.Fprintf(w, "object %d: type=%s\n", objID, TypeName(dn.Header.Type)); err != nil {
		return err
	}
	if len(dn.Bonus) < 16*8+zfsblkptr.Size+3*8 {
		return fmt.Errorf("zfsdump: dump_dsl_dataset: %w: bonus buffer too short", zfserr.MalformedInput)
	}
	fields, err := readU64Fields(dn.Bonus, 16)
	if err != nil {
		return fmt.Errorf("zfsdump: dump_dsl_dataset: %w", err)
	}
	names := [...]string{
		"dir_obj", "prev_snap_obj", "prev_snap_txg", "next_snap_obj",
		"snapnames_zapobj", "num_children", "creation_time", "creation_txg",
		"deadlist_obj", "used_bytes", "compressed_bytes", "uncompressed_bytes",
		"unique_bytes", "fsid_guid", "guid", "flags",
	}
	for i, name := range names {
		if _, err := fmt.Fprintf(w, "    %s = %d\n", name, fields[i]); err != nil {
			return err
		}
	}

	bpOff := 16 * 8
	bp, err := zfsblkptr.Decode(dn.Bonus[bpOff : bpOff+zfsblkptr.Size])
	if err != nil {
		return fmt.Errorf("zfsdump: dump_dsl_dataset: bp: %w", err)
	}
	if _, err := fmt.Fprintf(w, "    bp = {lvl=%d type=%d comp=%d lsize=%d psize=%d}\n", bp.Level, bp.Type, bp.Comp, bp.LSizeBytes, bp.PSizeBytes); err != nil {
		return err
	}

	tailOff := bpOff + zfsblkptr.Size
	tail, err := readU64Fields(dn.Bonus[tailOff:], 3)
	if err != nil {
		return fmt.Errorf("zfsdump: dump_dsl_dataset: %w", err)
	}
	tailNames := [...]string{"bp_replay_pad0", "bp_replay_pad1", "next_clones_obj"}
	for i, name := range tailNames {
		if _, err := fmt.Fprintf(w, "    %s = %d\n", name, tail[i]); err != nil {
			return err
		}
	}

	// spec.md §4.6: "also iterate ZAP on the object's data" — the
	// dataset's own data blocks (not bonus) hold a ZAP when it names
	// one (e.g. holds per-snapshot user properties).
	if objSet != nil {
		if entries, err := readZAP(dn); err == nil {
			if _, err := fmt.Fprintf(w, "    data ZAP:\n"); err != nil {
				return err
			}
			if err := printZAPEntries(w, entries); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpBpobj(w io.Writer, objID uint64, dn *zfsdmu.Dnode) error {
	if _, err := fmt.Fprintf(w, "object %d: type=%s\n", objID, TypeName(dn.Header.Type)); err != nil {
		return err
	}
	fields, err := readU64Fields(dn.Bonus, 6)
	if err != nil {
		return fmt.Errorf("zfsdump: dump_bpobj: %w", err)
	}
	names := [...]string{"num_blkptrs", "bytes", "comp", "uncomp", "subobjs", "num_subobjs"}
	for i, name := range names {
		if _, err := fmt.Fprintf(w, "    %s = %d\n", name, fields[i]); err != nil {
			return err
		}
	}
	return nil
}

// readU64Fields decodes the first n native/little-endian uint64 fields
// from buf, matching the original's bonus-buffer unpacks for DSL dir,
// DSL dataset, and bpobj ("20Q" / "16Q128x3Q" / "6Q",
// _examples/original_source/zdb_obj.py).
func readU64Fields(buf []byte, n int) ([]uint64, error) {
	if len(buf) < n*8 {
		return nil, fmt.Errorf("%w: need %d bytes for %d fields, have %d", zfserr.MalformedInput, n*8, n, len(buf))
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return out, nil
}
