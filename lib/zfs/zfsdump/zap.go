package zfsdump

import (
	"fmt"
	"io"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfszap"
)

// readZAP reads block 0 of dn and decodes it as a ZAP directory
// (spec.md §4.6 "dump_zap — read block 0, instantiate ZAP").
func readZAP(dn *zfsdmu.Dnode) ([]zfszap.Entry, error) {
	blk, err := dn.ReadBlk(0)
	if err != nil {
		return nil, err
	}
	return zfszap.Decode(dn, blk)
}

// lookupZAP finds one named entry in dn's block-0 ZAP directory, for
// callers (SA layout resolution) that need
// a single key rather than the full listing.
func lookupZAP(dn *zfsdmu.Dnode, name string) (any, error) {
	entries, err := readZAP(dn)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Value, nil
		}
	}
	return nil, fmt.Errorf("zfsdump: key %q: %w", name, zfserr.NotFound)
}

func dumpZAPObject(w io.Writer, objID uint64, dn *zfsdmu.Dnode, typeName string) error {
	if _, err := fmt.Fprintf(w, "object %d: type=%s\n", objID, typeName); err != nil {
		return err
	}
	entries, err := readZAP(dn)
	if err != nil {
		return fmt.Errorf("zfsdump: dump_zap: %w", err)
	}
	return printZAPEntries(w, entries)
}

// printZAPEntries renders every entry as "name = value" (spec.md
// §4.6 "iterate and print name = value").
func printZAPEntries(w io.Writer, entries []zfszap.Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "    %s = %v\n", e.Name, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// dumpZPLDir implements spec.md §4.6 "dump_zpldir": for each ZAP
// value, obj_id = value & ((1<<48)-1), file_type = value >> 60.
func dumpZPLDir(w io.Writer, objID uint64, dn *zfsdmu.Dnode) error {
	if _, err := fmt.Fprintf(w, "object %d: type=%s\n", objID, TypeName(dn.Header.Type)); err != nil {
		return err
	}
	entries, err := readZAP(dn)
	if err != nil {
		return fmt.Errorf("zfsdump: dump_zpldir: %w", err)
	}
	for _, e := range entries {
		raw, ok := e.Value.(uint64)
		if !ok {
			return fmt.Errorf("zfsdump: dump_zpldir: entry %q: %w: expected a scalar uint64 value", e.Name, zfserr.MalformedInput)
		}
		childObjID := raw & ((uint64(1) << 48) - 1)
		fileType := raw >> 60
		if _, err := fmt.Fprintf(w, "    %s = %d (type %d)\n", e.Name, childObjID, fileType); err != nil {
			return err
		}
	}
	return nil
}
