package zfsblkptr_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsblkptr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfscodec"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

// packWords serializes the 16 property/DVA words native/little-endian,
// matching the on-disk layout decoded by Decode
// (_examples/original_source/zdb_blkptr.py:40 "@7Q16x7Q").
func packWords(words [16]uint64) []byte {
	dat := make([]byte, 128)
	for i, w := range words {
		binary.LittleEndian.PutUint64(dat[i*8:i*8+8], w)
	}
	return dat
}

// normalProp builds a normal (non-embedded) property word using the
// original's bit layout (zdb_blkptr.py prop_offset_list): lsize(0,16),
// psize(16,16), comp(32,7), cksum(40,8), lvl(56,5), type(48,8).
func normalProp(lsizeField, psizeField uint64, comp, cksum uint8, lvl uint8, dmuType uint8) uint64 {
	var p uint64
	p |= lsizeField & 0xffff
	p |= (psizeField & 0xffff) << 16
	p |= uint64(comp&0x7f) << 32
	p |= uint64(cksum) << 40
	p |= uint64(dmuType) << 48
	p |= uint64(lvl&0x1f) << 56
	return p
}

// Scenario D (spec.md §8), adapted: comp=identity, lvl=0, a single DVA
// pointing at a 512-byte payload whose Fletcher-4 matches the pointer.
func TestGetBlkDataIdentityPassthrough(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	devPath := filepath.Join(dir, "dev0")

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}

	sum, err := zfscodec.Fletcher4(payload)
	require.NoError(t, err)

	devSize := int64(zfsvol.LabelReservedSize) + 512
	require.NoError(t, os.WriteFile(devPath, make([]byte, devSize), 0o644))
	f, err := os.OpenFile(devPath, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(payload, zfsvol.LabelReservedSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var words [16]uint64
	// lsize field 0 -> (0+1)<<9 = 512; psize field 0 -> 512.
	words[6] = normalProp(0, 0, zfsblkptr.CompOff, zfsblkptr.ChecksumFletcher4, 0, 19)
	words[0] = uint64(0) << 32 // vdev 0
	words[1] = 0               // offset 0
	// asize lives in the low 24 bits of word0; set asize=1 sector so
	// the slot counts as allocated (DVA.Valid()).
	words[0] |= 1
	words[11] = 1 // fill: nonzero, so this isn't decoded as a hole
	for i, w := range sum {
		words[12+i] = w
	}

	dat := packWords(words)
	bp, err := zfsblkptr.Decode(dat)
	require.NoError(t, err)
	require.False(t, bp.Embedded)
	assert.Equal(t, int64(512), bp.LSizeBytes)
	assert.Equal(t, int64(512), bp.PSizeBytes)
	require.Len(t, bp.ValidDVAs(), 1)

	topo := zfsvol.SingleLeaf(devPath)
	require.NoError(t, topo.Open())
	defer topo.Close()

	got, err := zfsblkptr.GetBlkData(topo, bp, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestGetBlkDataChecksumMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	devPath := filepath.Join(dir, "dev0")

	payload := make([]byte, 512)
	devSize := int64(zfsvol.LabelReservedSize) + 512
	require.NoError(t, os.WriteFile(devPath, make([]byte, devSize), 0o644))
	f, err := os.OpenFile(devPath, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(payload, zfsvol.LabelReservedSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var words [16]uint64
	words[6] = normalProp(0, 0, zfsblkptr.CompOff, zfsblkptr.ChecksumFletcher4, 0, 19)
	words[0] = 1
	words[1] = 0
	words[11] = 1          // fill: nonzero, so this isn't decoded as a hole
	words[12] = 0xdeadbeef // wrong checksum

	dat := packWords(words)
	bp, err := zfsblkptr.Decode(dat)
	require.NoError(t, err)

	topo := zfsvol.SingleLeaf(devPath)
	require.NoError(t, topo.Open())
	defer topo.Close()

	_, err = zfsblkptr.GetBlkData(topo, bp, 0)
	require.Error(t, err)
}

func TestHoleReturnsZeroedBlock(t *testing.T) {
	t.Parallel()
	var words [16]uint64
	words[6] = normalProp(0, 0, zfsblkptr.CompOff, zfsblkptr.ChecksumFletcher4, 0, 19)
	// All DVAs zero (asize=0) and fill=0 -> hole.
	dat := packWords(words)
	bp, err := zfsblkptr.Decode(dat)
	require.NoError(t, err)
	require.True(t, bp.Hole())

	got, err := zfsblkptr.GetBlkData(nil, bp, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 512), got)
}

func TestEncryptedIsUnsupported(t *testing.T) {
	t.Parallel()
	var words [16]uint64
	prop := normalProp(0, 0, zfsblkptr.CompOff, zfsblkptr.ChecksumFletcher4, 0, 19)
	prop |= 1 << 61 // x (encrypted) bit
	words[6] = prop
	dat := packWords(words)
	bp, err := zfsblkptr.Decode(dat)
	require.NoError(t, err)
	assert.True(t, bp.Encrypted)

	_, err = zfsblkptr.GetBlkData(nil, bp, 0)
	require.Error(t, err)
}

// TestDecodeKnownGoodByteSequence builds a 128-byte block pointer
// directly from the original's bit positions and struct layout
// (_examples/original_source/zdb_blkptr.py: "@7Q16x7Q", prop_offset_list),
// independent of the normalProp/packWords helpers above, so the suite
// is constrained by the on-disk format rather than by itself.
func TestDecodeKnownGoodByteSequence(t *testing.T) {
	t.Parallel()

	const (
		vdev   = uint64(2)
		asize  = uint64(3) // sectors
		offset = uint64(100)

		lsizeField = uint64(0) // -> (0+1)<<9 = 512 bytes
		psizeField = uint64(1) // -> (1+1)<<9 = 1024 bytes
		comp       = uint64(zfsblkptr.CompOff)
		cksum      = uint64(zfsblkptr.ChecksumFletcher4)
		dmuType    = uint64(19) // PLAIN_FILE_CONTENTS
		lvl        = uint64(3)
	)

	var dat [128]byte

	dva0Word0 := (vdev << 32) | asize
	binary.LittleEndian.PutUint64(dat[0:8], dva0Word0)
	binary.LittleEndian.PutUint64(dat[8:16], offset)

	prop := lsizeField |
		(psizeField << 16) |
		(comp << 32) |
		(cksum << 40) |
		(dmuType << 48) |
		(lvl << 56)
	binary.LittleEndian.PutUint64(dat[48:56], prop)

	const physBirth, logicalBirth, fill = uint64(7), uint64(9), uint64(1)
	binary.LittleEndian.PutUint64(dat[72:80], physBirth)
	binary.LittleEndian.PutUint64(dat[80:88], logicalBirth)
	binary.LittleEndian.PutUint64(dat[88:96], fill)

	bp, err := zfsblkptr.Decode(dat[:])
	require.NoError(t, err)

	assert.False(t, bp.Embedded)
	assert.EqualValues(t, lvl, bp.Level)
	assert.EqualValues(t, dmuType, bp.Type)
	assert.EqualValues(t, cksum, bp.Cksum)
	assert.EqualValues(t, comp, bp.Comp)
	assert.Equal(t, int64(512), bp.LSizeBytes)
	assert.Equal(t, int64(1024), bp.PSizeBytes)
	assert.Equal(t, physBirth, bp.PhysBirthTxg)
	assert.Equal(t, logicalBirth, bp.LogicalBirthTxg)
	assert.Equal(t, fill, bp.Fill)

	require.Len(t, bp.ValidDVAs(), 1)
	dva := bp.ValidDVAs()[0]
	assert.Equal(t, zfsvol.VdevID(vdev), dva.Vdev)
	assert.Equal(t, int64(asize*512), dva.ASize)
	assert.Equal(t, int64(offset*512), dva.Offset)
}

func TestLevelAboveMaxRejected(t *testing.T) {
	t.Parallel()
	var words [16]uint64
	words[6] = normalProp(0, 0, zfsblkptr.CompOff, zfsblkptr.ChecksumFletcher4, 7, 19)
	dat := packWords(words)
	_, err := zfsblkptr.Decode(dat)
	require.Error(t, err)
}

// bpAt builds a normal block pointer pointing at (offset, size) bytes on
// vdev 0, at the given indirection level, with checksumming disabled
// (cksum left 0, never ChecksumFletcher4) so the test isolates indexing
// from checksum verification.
func bpAt(offsetBytes, sizeBytes int64, lvl uint8) []byte {
	var words [16]uint64
	sizeField := uint64(sizeBytes>>9) - 1
	words[6] = normalProp(sizeField, sizeField, zfsblkptr.CompOff, 0, lvl, 19)
	words[0] = 1 // asize = 1 sector (allocated)
	words[1] = uint64(offsetBytes / 512)
	words[11] = 1 // fill
	return packWords(words)
}

// TestGetBlkDataMultiLevelIndexing exercises spec.md §8 testable property
// 7: a two-level indirect-block walk must route blk_id = k*iblk_cnt + r
// to child slot k at the outer level and slot r at the inner level, not
// re-use the raw blk_id unreduced at every level.
func TestGetBlkDataMultiLevelIndexing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	devPath := filepath.Join(dir, "dev0")

	// iblk_cnt = 512/128 = 4 at each indirect level.
	// blk_id = 5 = 1*4 + 1 -> outer slot 1, inner slot 1.
	outerBlock := make([]byte, 512)
	copy(outerBlock[1*128:2*128], bpAt(512, 512, 1)) // slot 1 -> inner indirect block at offset 512

	innerBlock := make([]byte, 512)
	copy(innerBlock[1*128:2*128], bpAt(1536, 512, 0)) // slot 1 -> data block at offset 1536

	wantData := make([]byte, 512)
	for i := range wantData {
		wantData[i] = 0xbb
	}
	decoyData := make([]byte, 512)
	for i := range decoyData {
		decoyData[i] = 0xaa
	}

	devSize := int64(zfsvol.LabelReservedSize) + 2048
	require.NoError(t, os.WriteFile(devPath, make([]byte, devSize), 0o644))
	f, err := os.OpenFile(devPath, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(outerBlock, zfsvol.LabelReservedSize+0)
	require.NoError(t, err)
	_, err = f.WriteAt(innerBlock, zfsvol.LabelReservedSize+512)
	require.NoError(t, err)
	_, err = f.WriteAt(decoyData, zfsvol.LabelReservedSize+1024)
	require.NoError(t, err)
	_, err = f.WriteAt(wantData, zfsvol.LabelReservedSize+1536)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rootBP, err := zfsblkptr.Decode(bpAt(0, 512, 2))
	require.NoError(t, err)

	topo := zfsvol.SingleLeaf(devPath)
	require.NoError(t, topo.Open())
	defer topo.Close()

	got, err := zfsblkptr.GetBlkData(topo, rootBP, 5)
	require.NoError(t, err)
	assert.Equal(t, wantData, got)
}
