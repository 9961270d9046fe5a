package zfsvol

import (
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// RaidZ is ZFS's variable-width-stripe parity vdev. This
// implementation only ever reads the data columns of a stripe — it
// never reconstructs from parity, and it makes no attempt to detect
// or repair a failed child (spec.md §1 non-goals).
type RaidZ struct {
	ID       VdevID
	Ashift   uint8
	NParity  int
	Children []Vdev
}

var _ Vdev = (*RaidZ)(nil)

func (r *RaidZ) Name() string { return fmt.Sprintf("raidz%d-%d", r.NParity, r.ID) }

func (r *RaidZ) MinBlock() int64 { return int64(1) << r.Ashift }

// ColumnRead describes one child-vdev read that participates in a
// RAID-Z stripe mapping.
type ColumnRead struct {
	Child   int // index into RaidZ.Children
	Offset  int64
	Size    int64
	Parity  bool
}

func roundUpInt64(x, m int64) int64 {
	return ((x + m - 1) / m) * m
}

// ColumnMap computes the per-child reads for a logical (ioOffset,
// ioSize) request, per spec.md §4.2. ioSize need not already be
// sector-aligned; it is rounded up to 1<<ashift internally, and the
// returned reads cover the rounded size (callers that need the exact
// requested byte range truncate the concatenated data after reading).
func (r *RaidZ) ColumnMap(ioOffset, ioSize int64) ([]ColumnRead, error) {
	dcols := int64(len(r.Children))
	if dcols == 0 {
		return nil, fmt.Errorf("raidz %v: %w: no children", r.ID, zfserr.MalformedInput)
	}
	nparity := int64(r.NParity)
	if nparity < 0 || nparity >= dcols {
		return nil, fmt.Errorf("raidz %v: %w: nparity=%d with %d columns", r.ID, zfserr.MalformedInput, nparity, dcols)
	}
	ashift := int64(r.Ashift)
	sectorSize := int64(1) << ashift

	roundedSize := roundUpInt64(ioSize, sectorSize)

	b := ioOffset >> ashift
	s := roundedSize >> ashift
	f := b % dcols
	o := (b / dcols) << ashift
	q := s / (dcols - nparity)
	rem := s - q*(dcols-nparity)
	bc := int64(0)
	if rem != 0 {
		bc = rem + nparity
	}

	var acols, scols int64
	if q == 0 {
		acols = bc
		scols = dcols
		if rounded := roundUpInt64(bc, nparity+1); rounded < scols {
			scols = rounded
		}
	} else {
		acols = dcols
		scols = dcols
	}

	reads := make([]ColumnRead, 0, scols)
	for c := int64(0); c < scols; c++ {
		col := (f + c) % dcols
		offset := o
		if col < f {
			offset += sectorSize
		}
		var size int64
		switch {
		case c < bc:
			size = (q + 1) << ashift
		case c < acols:
			size = q << ashift
		default:
			size = 0
		}
		reads = append(reads, ColumnRead{
			Child:  int(col),
			Offset: offset,
			Size:   size,
			Parity: c < nparity,
		})
	}
	return reads, nil
}

func (r *RaidZ) ReadAt(off int64, size int64) ([]byte, error) {
	reads, err := r.ColumnMap(off, size)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, cr := range reads {
		if cr.Parity || cr.Size == 0 {
			continue
		}
		if cr.Child < 0 || cr.Child >= len(r.Children) {
			return nil, fmt.Errorf("raidz %v: %w: column %d out of range", r.ID, zfserr.MalformedInput, cr.Child)
		}
		buf, err := r.Children[cr.Child].ReadAt(cr.Offset, cr.Size)
		if err != nil {
			return nil, fmt.Errorf("raidz %v: %w", r.ID, err)
		}
		out = append(out, buf...)
	}
	if int64(len(out)) < size {
		return nil, fmt.Errorf("raidz %v: %w: assembled %d bytes, wanted %d", r.ID, zfserr.IOError, len(out), size)
	}
	return out[:size], nil
}
