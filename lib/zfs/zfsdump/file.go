package zfsdump

import (
	"fmt"
	"io"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
)

// dumpUint8 streams every data block of the object to w (spec.md
// §4.6 "dump_uint8 — stream every data block of the object to
// standard output"; the refusal-on-TTY check belongs to the CLI layer
// per SPEC_FULL.md §2.4, so this just writes to whatever w it's given).
func dumpUint8(w io.Writer, objID uint64, dn *zfsdmu.Dnode) error {
	blocks, err := dn.IterBlks()
	if err != nil {
		return fmt.Errorf("zfsdump: object %d: %w", objID, err)
	}
	for _, blk := range blocks {
		if _, err := w.Write(blk); err != nil {
			return fmt.Errorf("zfsdump: object %d: write: %w", objID, err)
		}
	}
	return nil
}
