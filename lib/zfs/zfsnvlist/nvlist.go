// Package zfsnvlist decodes the XDR-encoded NV-pair lists ("nvlists")
// used throughout ZFS for pool labels and vdev configuration.
package zfsnvlist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/maps"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// unknownTypeError marks an nvpair whose type code this decoder
// doesn't recognize; Decode catches it and skips the pair rather than
// failing the whole list.
type unknownTypeError struct {
	name string
	typ  uint32
}

func (e *unknownTypeError) Error() string {
	return fmt.Sprintf("%v: unknown nvlist type code %d for key %q", zfserr.Unsupported, e.typ, e.name)
}

func (e *unknownTypeError) Unwrap() error { return zfserr.Unsupported }

// Type codes this decoder understands (spec.md §3 "NV-pair / NV-list").
const (
	TypeBooleanTrue = 1
	TypeUint64      = 8
	TypeString      = 9
	TypeNVList      = 19
	TypeNVListArray = 20
)

// List is an ordered name->value mapping decoded from one nvlist
// region. Values are one of: bool (always true, for TypeBooleanTrue),
// uint64, []uint64 (a uint64 array of other than one element), string,
// *List, or []*List.
type List struct {
	order   []string
	values  map[string]any
	Skipped []string // names whose type code was unrecognized
}

func newList() *List {
	return &List{values: make(map[string]any)}
}

func (l *List) set(name string, val any) {
	if _, exists := l.values[name]; !exists {
		l.order = append(l.order, name)
	}
	l.values[name] = val
}

// Get returns the value stored under name, if any.
func (l *List) Get(name string) (any, bool) {
	v, ok := l.values[name]
	return v, ok
}

// Keys returns the names in the order they were decoded.
func (l *List) Keys() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// SortedKeys returns the names sorted lexically, for deterministic
// diagnostic output regardless of on-disk order.
func (l *List) SortedKeys() []string {
	return maps.SortedKeys(l.values)
}

// Len reports the number of name/value pairs.
func (l *List) Len() int { return len(l.order) }

// Decode decodes one nvlist region starting at offset 0 of dat,
// returning the decoded list and the number of bytes consumed.
func Decode(dat []byte) (*List, int, error) {
	if len(dat) < 8 {
		return nil, 0, fmt.Errorf("nvlist: %w: too short for version/flags header", zfserr.MalformedInput)
	}
	// version, flags: read but not interpreted (spec.md §4.3).
	off := 8

	list := newList()
	for {
		if off+8 > len(dat) {
			return nil, 0, fmt.Errorf("nvlist: %w: truncated before terminator", zfserr.MalformedInput)
		}
		encSize := binary.BigEndian.Uint32(dat[off : off+4])
		decSize := binary.BigEndian.Uint32(dat[off+4 : off+8])
		if encSize == 0 && decSize == 0 {
			off += 8
			break
		}
		if off+8+int(encSize) > len(dat) {
			return nil, 0, fmt.Errorf("nvlist: %w: pair at offset %d claims %d encoded bytes, past end of buffer", zfserr.MalformedInput, off, encSize)
		}

		name, val, n, err := decodePair(dat[off+8:])
		var unk *unknownTypeError
		switch {
		case errors.As(err, &unk):
			// Unknown types are logged and skipped, not
			// fatal (spec.md §4.3): skip the whole pair by
			// its self-described encoded size rather than
			// trying to interpret a payload we don't
			// understand.
			list.Skipped = append(list.Skipped, unk.name)
		case err != nil:
			return nil, 0, fmt.Errorf("nvlist: pair at offset %d: %w", off, err)
		default:
			list.set(name, val)
			if n > int(encSize) {
				return nil, 0, fmt.Errorf("nvlist: %w: pair %q consumed %d bytes but declared encoded_size=%d", zfserr.MalformedInput, name, n, encSize)
			}
			// n may be < encSize: the real on-disk format
			// pads each pair's encoded size up to an 8-byte
			// boundary beyond what's structurally required;
			// advancing by encSize (not n) keeps the scan in
			// sync regardless.
		}
		off += 8 + int(encSize)
	}
	return list, off, nil
}

// decodePair decodes one nvpair's name/type/count/payload (the
// portion following the encoded-size/decoded-size header) and returns
// how many bytes it consumed.
func decodePair(dat []byte) (name string, val any, consumed int, err error) {
	name, n, err := decodeXDRString(dat)
	if err != nil {
		return "", nil, 0, err
	}
	off := n

	if off+8 > len(dat) {
		return "", nil, 0, fmt.Errorf("%w: truncated type/count", zfserr.MalformedInput)
	}
	typ := binary.BigEndian.Uint32(dat[off : off+4])
	count := binary.BigEndian.Uint32(dat[off+4 : off+8])
	off += 8

	switch typ {
	case TypeBooleanTrue:
		val = true

	case TypeUint64:
		if count == 1 {
			if off+8 > len(dat) {
				return "", nil, 0, fmt.Errorf("%w: truncated uint64 value", zfserr.MalformedInput)
			}
			val = binary.BigEndian.Uint64(dat[off : off+8])
			off += 8
		} else {
			vals := make([]uint64, count)
			for i := range vals {
				if off+8 > len(dat) {
					return "", nil, 0, fmt.Errorf("%w: truncated uint64 array", zfserr.MalformedInput)
				}
				vals[i] = binary.BigEndian.Uint64(dat[off : off+8])
				off += 8
			}
			val = vals
		}

	case TypeString:
		s, sn, serr := decodeXDRString(dat[off:])
		if serr != nil {
			return "", nil, 0, fmt.Errorf("%w: string value: %v", zfserr.MalformedInput, serr)
		}
		val = s
		off += sn

	case TypeNVList:
		nested, nn, nerr := Decode(dat[off:])
		if nerr != nil {
			return "", nil, 0, fmt.Errorf("nested list: %w", nerr)
		}
		val = nested
		off += nn

	case TypeNVListArray:
		arr := make([]*List, count)
		for i := range arr {
			nested, nn, nerr := Decode(dat[off:])
			if nerr != nil {
				return "", nil, 0, fmt.Errorf("array element %d: %w", i, nerr)
			}
			arr[i] = nested
			off += nn
		}
		val = arr

	default:
		// Unknown types are logged and skipped, not fatal
		// (spec.md §4.3); the caller skips the whole pair by its
		// self-described encoded size rather than this function
		// trying to guess a payload layout it doesn't recognize.
		return name, nil, off, &unknownTypeError{name: name, typ: typ}
	}

	return name, val, off, nil
}

// decodeXDRString decodes a length-prefixed, 4-byte-aligned string:
// a u32 length followed by that many bytes, padded to a 4-byte
// boundary.
func decodeXDRString(dat []byte) (string, int, error) {
	if len(dat) < 4 {
		return "", 0, fmt.Errorf("%w: truncated string length", zfserr.MalformedInput)
	}
	n := binary.BigEndian.Uint32(dat[0:4])
	total := 4 + align4(int(n))
	if total > len(dat) {
		return "", 0, fmt.Errorf("%w: truncated string body", zfserr.MalformedInput)
	}
	raw := dat[4 : 4+n]
	if !utf8.Valid(raw) {
		return "", 0, fmt.Errorf("%w: string value is not valid UTF-8", zfserr.MalformedInput)
	}
	return string(raw), total, nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
