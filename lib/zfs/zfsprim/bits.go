// Package zfsprim holds the bit-level and text-dump primitives that
// every higher layer of the pool decoder builds on: bitfield
// extraction out of the packed 64-bit words the on-disk format is
// built from, and a hexdump renderer for diagnostics.
package zfsprim

import "golang.org/x/exp/constraints"

// BitsGet returns the unsigned field of width length starting at bit
// low of x: (x>>low) & ((1<<length)-1).
//
// low+length must be <= the bit width of T; callers in this codebase
// only ever extract from already-validated property words, so this
// panics on misuse rather than returning an error.
func BitsGet[T constraints.Unsigned](x T, low, length int) T {
	bits := bitWidth[T]()
	if low < 0 || length < 0 || low+length > bits {
		panic("zfsprim.BitsGet: low+length out of range")
	}
	if length == bits {
		return x >> low
	}
	mask := (T(1) << length) - 1
	return (x >> low) & mask
}

// BitsPut is the inverse of BitsGet: it returns x with the length-bit
// field at bit low replaced by val (masked to length bits).
func BitsPut[T constraints.Unsigned](x T, low, length int, val T) T {
	bits := bitWidth[T]()
	if low < 0 || length < 0 || low+length > bits {
		panic("zfsprim.BitsPut: low+length out of range")
	}
	var mask T
	if length == bits {
		mask = ^T(0)
	} else {
		mask = (T(1) << length) - 1
	}
	x &^= mask << low
	x |= (val & mask) << low
	return x
}

func bitWidth[T constraints.Unsigned]() int {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 8
	case uint16:
		return 16
	case uint32:
		return 32
	case uint64, uint:
		return 64
	default:
		panic("zfsprim: unsupported unsigned type")
	}
}
