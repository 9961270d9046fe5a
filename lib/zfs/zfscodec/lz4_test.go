package zfscodec_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfscodec"
)

// lz4CompressNaive builds a valid (if inefficient) LZ4 block: all
// literals, no back-references. Good enough to exercise the decoder's
// literal-length and token-byte handling, including the
// escape-on-255 path. The literals form one single sequence: in the
// LZ4 block format only the last sequence may end without a match.
func lz4CompressNaive(t *testing.T, uncompressed []byte) []byte {
	t.Helper()
	var block []byte
	litLen := len(uncompressed)
	var token byte
	var extra []byte
	if litLen < 15 {
		token = byte(litLen) << 4
	} else {
		token = 0xf0
		n := litLen - 15
		for n >= 255 {
			extra = append(extra, 255)
			n -= 255
		}
		extra = append(extra, byte(n))
	}
	block = append(block, token)
	block = append(block, extra...)
	block = append(block, uncompressed...)
	framed := make([]byte, 4+len(block))
	binary.BigEndian.PutUint32(framed, uint32(len(block)))
	copy(framed[4:], block)
	return framed
}

func TestLZ4RoundTrip(t *testing.T) {
	t.Parallel()
	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	compressed := lz4CompressNaive(t, payload)
	got, err := zfscodec.LZ4Decompress(compressed, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestLZ4MismatchedSizeIsError(t *testing.T) {
	t.Parallel()
	payload := []byte("hello world")
	compressed := lz4CompressNaive(t, payload)
	_, err := zfscodec.LZ4Decompress(compressed, len(payload)-1)
	require.Error(t, err)
}

func TestLZ4WithBackreference(t *testing.T) {
	t.Parallel()
	// token: litlen=4 ("abcd"), matchlen-4=4 (copy 8 bytes back at
	// offset 4) => "abcd" + "abcd" repeated to reach 12 bytes total.
	block := []byte{
		0x44, 'a', 'b', 'c', 'd', // litlen=4 "abcd", matchlen nibble=4
		0x04, 0x00, // offset=4 (LE)
	}
	framed := make([]byte, 4+len(block))
	binary.BigEndian.PutUint32(framed, uint32(len(block)))
	copy(framed[4:], block)

	got, err := zfscodec.LZ4Decompress(framed, 12)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdabcdabcd"), got)
}
