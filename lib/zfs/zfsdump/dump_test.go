package zfsdump_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsblkptr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfscodec"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdmu"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdump"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

func buildDnodeHeader(dnType uint8, nblkptr uint8, bonusLen uint16) []byte {
	dat := make([]byte, zfsdmu.DnodeSize)
	dat[0] = dnType
	dat[3] = nblkptr
	binary.LittleEndian.PutUint16(dat[8:10], 1) // datablkszsec -> 512 bytes
	binary.LittleEndian.PutUint16(dat[10:12], bonusLen)
	return dat
}

// identityBPBytes returns a 128-byte identity-compressed, single-DVA
// block pointer for payload at devOffset, as in zfsdmu's own tests.
func identityBPBytes(t *testing.T, payload []byte, devOffset int64) []byte {
	t.Helper()
	sum, err := zfscodec.Fletcher4(payload)
	require.NoError(t, err)

	var words [16]uint64
	sizeField := uint64(len(payload)/512 - 1)
	// Nonzero DMU type at bits 48..55: a type-0 pointer is unallocated
	// and zfsdmu.Decode leaves its slot empty.
	words[6] = (sizeField & 0xffff) | (sizeField&0xffff)<<16 |
		uint64(zfsblkptr.CompOff)<<32 | uint64(zfsblkptr.ChecksumFletcher4)<<40 |
		uint64(1)<<48
	words[0] = uint64(len(payload) / 512)
	words[1] = uint64(devOffset / 512)
	words[11] = 1 // fill
	for i, w := range sum {
		words[12+i] = w
	}
	dat := make([]byte, 128)
	for i, w := range words {
		binary.LittleEndian.PutUint64(dat[i*8:i*8+8], w)
	}
	return dat
}

// singleBlockDnode builds a topology containing exactly one device
// block (blk), and a dnode whose first block pointer resolves to it —
// enough machinery for the ZAP-reading dumpers, without needing a
// full object-set fixture.
func singleBlockDnode(t *testing.T, dnType uint8, blk []byte) *zfsdmu.Dnode {
	t.Helper()
	dir := t.TempDir()
	devPath := filepath.Join(dir, "dev0")
	devSize := int64(zfsvol.LabelReservedSize) + int64(len(blk))
	require.NoError(t, os.WriteFile(devPath, make([]byte, devSize), 0o644))
	f, err := os.OpenFile(devPath, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(blk, zfsvol.LabelReservedSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	topo := zfsvol.SingleLeaf(devPath)
	require.NoError(t, topo.Open())
	t.Cleanup(func() { _ = topo.Close() })

	dat := buildDnodeHeader(dnType, 1, 0)
	dat[2] = 1 // nlevels: one block pointer resolves directly to data
	binary.LittleEndian.PutUint16(dat[8:10], uint16(len(blk)/512))
	copy(dat[64:64+128], identityBPBytes(t, blk, 0))

	dn, err := zfsdmu.Decode(topo, dat)
	require.NoError(t, err)
	return dn
}

// buildMicroZapBlock returns a 512-byte (one device sector's worth of
// whole 512-byte sectors) micro-ZAP block: just large enough to be a
// legal single-block dnode data block (spec.md §4.7 "MicroZap").
func buildMicroZapBlock(pairs map[string]uint64) []byte {
	blk := make([]byte, 512)
	binary.LittleEndian.PutUint64(blk[0:8], (uint64(1)<<63)|3)
	i := 0
	for name, val := range pairs {
		off := 64 + i*64
		binary.LittleEndian.PutUint64(blk[off:off+8], val)
		copy(blk[off+14:off+64], name)
		i++
	}
	return blk
}

func TestDumpZAPObject(t *testing.T) {
	t.Parallel()
	blk := buildMicroZapBlock(map[string]uint64{"pool_props": 7})
	dn := singleBlockDnode(t, 1, blk) // type 1: object directory (ZAP)

	var buf bytes.Buffer
	require.NoError(t, zfsdump.DumpObject(&buf, nil, 3, dn))
	assert.Contains(t, buf.String(), "pool_props = 7")
	assert.Contains(t, buf.String(), "type=object directory")
}

func TestDumpZPLDir(t *testing.T) {
	t.Parallel()
	// value = (file_type<<60) | obj_id; file_type=2 (DIR), obj_id=42.
	value := (uint64(2) << 60) | 42
	blk := buildMicroZapBlock(map[string]uint64{"subdir": value})
	dn := singleBlockDnode(t, 20, blk) // type 20: ZFS directory

	var buf bytes.Buffer
	require.NoError(t, zfsdump.DumpObject(&buf, nil, 5, dn))
	assert.Contains(t, buf.String(), "subdir = 42 (type 2)")
}

func TestDumpBpobj(t *testing.T) {
	t.Parallel()
	dat := buildDnodeHeader(5, 0, 48) // type 5: bpobj
	fields := []uint64{10, 20480, 20480, 40960, 0, 0}
	for i, v := range fields {
		binary.LittleEndian.PutUint64(dat[192+i*8:192+i*8+8], v) // bonus starts at 192
	}
	dn, err := zfsdmu.Decode(nil, dat)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, zfsdump.DumpObject(&buf, nil, 9, dn))
	out := buf.String()
	assert.Contains(t, out, "num_blkptrs = 10")
	assert.Contains(t, out, "bytes = 20480")
}

func TestDumpDSLDirNoRecursion(t *testing.T) {
	t.Parallel()
	dat := buildDnodeHeader(12, 0, 20*8) // type 12: DSL directory
	// Leave child_dir_zapobj / props_zapobj (indices 4, 10) as zero so
	// no recursion is attempted, and no object set is needed.
	binary.LittleEndian.PutUint64(dat[192+0:192+8], 123) // creation_time (bonus starts at 192)
	dn, err := zfsdmu.Decode(nil, dat)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, zfsdump.DumpObject(&buf, nil, 2, dn))
	assert.Contains(t, buf.String(), "creation_time = 123")
}

func TestDumpRawFallback(t *testing.T) {
	t.Parallel()
	dat := buildDnodeHeader(8, 0, 8) // type 8: space map — no typed dumper
	dn, err := zfsdmu.Decode(nil, dat)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, zfsdump.DumpObject(&buf, nil, 1, dn))
	assert.Contains(t, buf.String(), "no typed dumper")
}

func TestTypeNameRemap(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "DSL directory", zfsdump.TypeName(12))
	// >54, low 5 bits 3 -> remaps to 26 ("other uint64[]").
	assert.Equal(t, "other uint64[]", zfsdump.TypeName(67))
}
