package zfscodec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfscodec"
)

func TestFletcher4Pure(t *testing.T) {
	t.Parallel()

	payload := []byte("the quick brown fox jumps over the lazy dog!!!")
	s1, err := zfscodec.Fletcher4(payload)
	require.NoError(t, err)
	s2, err := zfscodec.Fletcher4(payload)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	// Input that is not a multiple of 4 bytes is zero-padded to one:
	// the 46-byte payload checksums the same as an explicit copy
	// padded with two zero bytes to 48.
	unaligned := payload // 46 % 4 == 2
	padded := append(append([]byte{}, unaligned...), 0, 0)
	sUnaligned, err := zfscodec.Fletcher4(unaligned)
	require.NoError(t, err)
	sPadded, err := zfscodec.Fletcher4(padded)
	require.NoError(t, err)
	assert.Equal(t, sUnaligned, sPadded)
}

func TestFletcher4OversizeRejected(t *testing.T) {
	t.Parallel()
	_, err := zfscodec.Fletcher4(make([]byte, 8<<20+4))
	require.Error(t, err)
}

func TestFletcher4StringForms(t *testing.T) {
	t.Parallel()
	s := zfscodec.Fletcher4Sum{0x1, 0xabcd, 0, 0xdeadbeef}
	assert.Equal(t,
		"0000000000000001:000000000000abcd:0000000000000000:00000000deadbeef",
		s.String())
	assert.Equal(t, "1:abcd:0:deadbeef", s.LegacyString())
}
