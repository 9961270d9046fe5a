package zfscodec

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// LZ4Decompress decompresses a ZFS-framed LZ4 buffer: a 4-byte
// big-endian compressed-size prefix followed by exactly that many
// bytes of a raw (frameless) LZ4 block, which must decompress to
// exactly uncompressedSize bytes; output of any other length, shorter
// or longer, is an error.
//
// The compressed-size prefix is checked only against the bytes that
// follow it; it is not compared with uncompressedSize.
func LZ4Decompress(dat []byte, uncompressedSize int) ([]byte, error) {
	if len(dat) < 4 {
		return nil, fmt.Errorf("lz4: %w: buffer too short for size prefix", zfserr.MalformedInput)
	}
	csize := binary.BigEndian.Uint32(dat[0:4])
	if int(csize) > len(dat)-4 {
		return nil, fmt.Errorf("lz4: %w: compressed-size prefix %d exceeds available %d bytes", zfserr.MalformedInput, csize, len(dat)-4)
	}
	block := dat[4 : 4+csize]

	out, err := lz4DecompressBlock(block, uncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if len(out) != uncompressedSize {
		return nil, fmt.Errorf("lz4: %w: decompressed %d bytes but buf_size=%d", zfserr.MalformedInput, len(out), uncompressedSize)
	}
	return out, nil
}

// lz4DecompressBlock decompresses a single frameless LZ4 block (the
// "LZ4 block format", as opposed to the "LZ4 frame format" that
// general-purpose LZ4 libraries expect on stdin).
func lz4DecompressBlock(src []byte, sizeHint int) ([]byte, error) {
	dst := make([]byte, 0, sizeHint)
	i := 0
	for i < len(src) {
		token := src[i]
		i++

		litLen := int(token >> 4)
		if litLen == 15 {
			for {
				if i >= len(src) {
					return nil, fmt.Errorf("%w: truncated literal-length byte", zfserr.MalformedInput)
				}
				b := src[i]
				i++
				litLen += int(b)
				if b != 255 {
					break
				}
			}
		}
		if i+litLen > len(src) {
			return nil, fmt.Errorf("%w: literal run overruns input", zfserr.MalformedInput)
		}
		dst = append(dst, src[i:i+litLen]...)
		i += litLen

		if i >= len(src) {
			// A block may legally end right after a final
			// literal run, with no match that follows.
			break
		}
		if i+2 > len(src) {
			return nil, fmt.Errorf("%w: truncated match offset", zfserr.MalformedInput)
		}
		offset := int(src[i]) | int(src[i+1])<<8
		i += 2
		if offset == 0 || offset > len(dst) {
			return nil, fmt.Errorf("%w: match offset %d invalid at output position %d", zfserr.MalformedInput, offset, len(dst))
		}

		matchLen := int(token & 0xf)
		if matchLen == 15 {
			for {
				if i >= len(src) {
					return nil, fmt.Errorf("%w: truncated match-length byte", zfserr.MalformedInput)
				}
				b := src[i]
				i++
				matchLen += int(b)
				if b != 255 {
					break
				}
			}
		}
		matchLen += 4

		matchStart := len(dst) - offset
		for n := 0; n < matchLen; n++ {
			dst = append(dst, dst[matchStart+n])
		}
	}
	return dst, nil
}
