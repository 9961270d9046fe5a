package zfszap

import "encoding/binary"

// microZapHeaderLen is the 64-byte header preceding the entry table
// (spec.md §4.7 "MicroZap").
const microZapHeaderLen = 64

// microZapEntryLen is the fixed entry size: value(8) + cd(4) + pad(2)
// + name[50].
const microZapEntryLen = 64

// decodeMicroZap walks 64-byte entries from offset 64 to the end of
// the block, skipping entries whose name is empty (spec.md §4.7
// "MicroZap").
func decodeMicroZap(blk []byte) []Entry {
	var out []Entry
	for off := microZapHeaderLen; off+microZapEntryLen <= len(blk); off += microZapEntryLen {
		entry := blk[off : off+microZapEntryLen]
		if entry[14] == 0 {
			continue
		}
		// Native/little-endian, matching the original's
		// struct.unpack_from(f"QIxx{n}s", ...)
		// (_examples/original_source/zdb_zap.py:36).
		value := binary.LittleEndian.Uint64(entry[0:8])
		name := cstring(entry[14:64])
		out = append(out, Entry{Name: name, Value: value})
	}
	return out
}

// cstring trims a fixed-width buffer at its first NUL byte, decoding
// the rest as UTF-8.
func cstring(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
