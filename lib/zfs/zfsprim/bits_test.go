package zfsprim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsprim"
)

func TestBitsGet(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		x      uint64
		low    int
		length int
		exp    uint64
	}{
		"zero":        {x: 0, low: 0, length: 64, exp: 0},
		"low-byte":    {x: 0xFF, low: 0, length: 8, exp: 0xFF},
		"mid-nibble":  {x: 0xABCD, low: 4, length: 4, exp: 0xC},
		"full-width":  {x: 0xFFFFFFFFFFFFFFFF, low: 0, length: 64, exp: 0xFFFFFFFFFFFFFFFF},
		"high-bit":    {x: 1 << 63, low: 63, length: 1, exp: 1},
		"embed-flags": {x: 1 << 39, low: 39, length: 1, exp: 1},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.exp, zfsprim.BitsGet(tc.x, tc.low, tc.length))
		})
	}
}

// TestBitsGetLaw verifies the general law from the spec: for all
// (x, low, length) with low+length<=64, BitsGet(x,low,length) ==
// (x>>low) & ((1<<length)-1), computed here with a uint64 shift and
// mask.
func TestBitsGetLaw(t *testing.T) {
	t.Parallel()
	samples := []uint64{0, 1, 0xDEADBEEF, 0xFFFFFFFFFFFFFFFF, 0x8000000000000001, 0x123456789ABCDEF0}
	for _, x := range samples {
		for low := 0; low < 64; low++ {
			for _, length := range []int{1, 4, 7, 8, 16, 25, 32} {
				if low+length > 64 {
					continue
				}
				var mask uint64
				if length == 64 {
					mask = ^uint64(0)
				} else {
					mask = (uint64(1) << length) - 1
				}
				exp := (x >> low) & mask
				assert.Equal(t, exp, zfsprim.BitsGet(x, low, length))
			}
		}
	}
}

func TestBitsPutRoundTrip(t *testing.T) {
	t.Parallel()
	var x uint64
	x = zfsprim.BitsPut(x, 39, 1, 1)
	assert.Equal(t, uint64(1), zfsprim.BitsGet(x, 39, 1))

	x = zfsprim.BitsPut(x, 0, 25, 0x1ABCDEF&((1<<25)-1))
	assert.Equal(t, uint64(0x1ABCDEF)&((1<<25)-1), zfsprim.BitsGet(x, 0, 25))
	assert.Equal(t, uint64(1), zfsprim.BitsGet(x, 39, 1))
}
