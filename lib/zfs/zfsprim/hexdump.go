package zfsprim

import (
	"fmt"
	"io"
)

// Hexdump writes a classic 16-bytes-per-line hexdump of dat to w,
// prefixed with the byte offset of each line and followed by the
// printable-ASCII rendering of the line (non-printable bytes shown as
// '.').
func Hexdump(w io.Writer, dat []byte) error {
	for off := 0; off < len(dat); off += 16 {
		line := dat[off:]
		if len(line) > 16 {
			line = line[:16]
		}
		if _, err := fmt.Fprintf(w, "%08x  ", off); err != nil {
			return err
		}
		for i := 0; i < 16; i++ {
			if i == 8 {
				if _, err := io.WriteString(w, " "); err != nil {
					return err
				}
			}
			if i < len(line) {
				if _, err := fmt.Fprintf(w, "%02x ", line[i]); err != nil {
					return err
				}
			} else {
				if _, err := io.WriteString(w, "   "); err != nil {
					return err
				}
			}
		}
		if _, err := io.WriteString(w, " |"); err != nil {
			return err
		}
		for _, b := range line {
			c := byte('.')
			if b >= 0x20 && b < 0x7f {
				c = b
			}
			if _, err := w.Write([]byte{c}); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "|\n"); err != nil {
			return err
		}
	}
	return nil
}
