package zfsdmu_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
)

func buildDnode(t *testing.T, dnType uint8, nblkptr uint8, bonusLen uint16, maxBlkID uint64) []byte {
	t.Helper()
	dat := make([]byte, zfsdmu.DnodeSize)
	dat[0] = dnType
	dat[1] = 0 // indblkshift
	dat[2] = 0 // nlevels
	dat[3] = nblkptr
	dat[4] = 0 // bonustype
	// Native/little-endian, matching the original's dnode header unpack
	// (_examples/original_source/zdb_obj.py:177 "@8BHHB3xQQ32x").
	binary.LittleEndian.PutUint16(dat[8:10], 1) // datablkszsec -> 512 bytes
	binary.LittleEndian.PutUint16(dat[10:12], bonusLen)
	binary.LittleEndian.PutUint64(dat[16:24], maxBlkID)
	return dat
}

func TestDecodeDnodeHeader(t *testing.T) {
	t.Parallel()
	dat := buildDnode(t, 19, 1, 24, 0)
	dn, err := zfsdmu.Decode(nil, dat)
	require.NoError(t, err)
	assert.Equal(t, uint8(19), dn.Header.Type)
	assert.Equal(t, uint8(1), dn.Header.NBlkPtr)
	assert.Equal(t, uint16(24), dn.Header.BonusLen)
	assert.Equal(t, int64(512), dn.Header.DataBlockSize())
	require.Len(t, dn.BPs, 1)
	assert.Len(t, dn.Bonus, 24)
}

// nlevels==0 always reads as a hole (spec.md §4.6 "read_blk").
func TestReadBlkNLevelsZeroIsHole(t *testing.T) {
	t.Parallel()
	dat := buildDnode(t, 19, 0, 0, 3)
	dn, err := zfsdmu.Decode(nil, dat)
	require.NoError(t, err)

	for id := uint64(0); id <= 3; id++ {
		blk, err := dn.ReadBlk(id)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, 512), blk)
	}
}

func TestIterBlksCoversMaxBlkID(t *testing.T) {
	t.Parallel()
	dat := buildDnode(t, 19, 0, 0, 4)
	dn, err := zfsdmu.Decode(nil, dat)
	require.NoError(t, err)

	blocks, err := dn.IterBlks()
	require.NoError(t, err)
	assert.Len(t, blocks, 5)
}

func TestRemapType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint8(54), zfsdmu.RemapType(54))
	assert.Equal(t, uint8(26), zfsdmu.RemapType(67)) // >54, low 5 bits = 3
	assert.Equal(t, uint8(27), zfsdmu.RemapType(68)) // >54, low 5 bits = 4
	assert.Equal(t, uint8(71), zfsdmu.RemapType(71)) // >54, low 5 bits = 7, unmapped -> passthrough
}

func TestObjSetTypeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "META", zfsdmu.ObjSetTypeMeta.String())
	assert.Equal(t, "ZFS", zfsdmu.ObjSetTypeZFS.String())
	assert.Equal(t, "ZVOL", zfsdmu.ObjSetTypeZVOL.String())
}
