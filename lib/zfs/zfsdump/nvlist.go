package zfsdump

import (
	"fmt"
	"io"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsnvlist"
)

// DumpNVList pretty-prints an nvlist as indented "key: value" text —
// not JSON, which spec.md §1 scopes out as an external collaborator's
// job (SPEC_FULL.md §7 "grounded on how the original's zdb -l renders
// the label config").
func DumpNVList(w io.Writer, list *zfsnvlist.List, indent int) error {
	prefix := ""
	for i := 0; i < indent; i++ {
		prefix += "    "
	}
	for _, name := range list.Keys() {
		val, _ := list.Get(name)
		switch v := val.(type) {
		case *zfsnvlist.List:
			if _, err := fmt.Fprintf(w, "%s%s:\n", prefix, name); err != nil {
				return err
			}
			if err := DumpNVList(w, v, indent+1); err != nil {
				return err
			}
		case []*zfsnvlist.List:
			for i, nested := range v {
				if _, err := fmt.Fprintf(w, "%s%s[%d]:\n", prefix, name, i); err != nil {
					return err
				}
				if err := DumpNVList(w, nested, indent+1); err != nil {
					return err
				}
			}
		default:
			if _, err := fmt.Fprintf(w, "%s%s: %v\n", prefix, name, v); err != nil {
				return err
			}
		}
	}
	for _, name := range list.Skipped {
		if _, err := fmt.Fprintf(w, "%s%s: <unsupported type, skipped>\n", prefix, name); err != nil {
			return err
		}
	}
	return nil
}
