package zfsvol

import (
	"fmt"
	"os"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/diskio"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// LabelReservedSize is the fixed 4 MiB prefix every leaf vdev reserves
// for the label and boot region (spec.md §3 "Device configuration").
// All logical reads against a leaf are offset by this amount.
const LabelReservedSize = 0x400000

// Vdev is the read side of a top-level vdev: given a logical offset
// and size (as seen by the block-pointer layer, i.e. already past the
// label-reserved region for leaves), it returns exactly size bytes or
// fails.
type Vdev interface {
	Name() string
	// ReadAt reads exactly size bytes starting at the vdev-logical
	// offset off. The request is first rounded up to the vdev's
	// minimum block size by the caller (Topology.Read); ReadAt
	// itself does not re-round.
	ReadAt(off int64, size int64) ([]byte, error)
	// MinBlock is the smallest unit ReadAt should be asked to read:
	// 1 for a leaf, 1<<ashift for RAID-Z.
	MinBlock() int64
}

// Leaf is a single backing device: a plain file or block device.
// Reads are always issued LabelReservedSize bytes into the underlying
// file.
type Leaf struct {
	ID   VdevID
	Path string

	file *diskio.OSFile[PhysicalAddr]
}

var _ Vdev = (*Leaf)(nil)

// openFile wraps the teacher's generic diskio.File[A] abstraction
// around the leaf's backing file, addressed in PhysicalAddr (the
// byte-offset-into-one-device unit every leaf read is expressed in)
// rather than a bare int64.
func (l *Leaf) openFile() (*diskio.OSFile[PhysicalAddr], error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("vdev %v: %w: %v", l.ID, zfserr.IOError, err)
	}
	return &diskio.OSFile[PhysicalAddr]{File: f}, nil
}

// Open opens the backing file for this leaf for reading. Per the
// synchronous, single-threaded resource model (spec.md §5) this is
// safe to call once and reuse for the life of the session; it is not
// required for correctness (ReadAt opens-seeks-reads-closes the file
// itself if Open was never called), only for I/O throughput.
func (l *Leaf) Open() error {
	f, err := l.openFile()
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

func (l *Leaf) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Leaf) Name() string { return l.Path }

func (l *Leaf) MinBlock() int64 { return 1 }

func (l *Leaf) ReadAt(off int64, size int64) ([]byte, error) {
	f := l.file
	if f == nil {
		var err error
		f, err = l.openFile()
		if err != nil {
			return nil, err
		}
		defer f.Close()
	}
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, PhysicalAddr(off+LabelReservedSize))
	if err != nil {
		return nil, fmt.Errorf("vdev %v: read %d bytes at %#x: %w: %v", l.ID, size, off, zfserr.IOError, err)
	}
	if int64(n) != size {
		return nil, fmt.Errorf("vdev %v: short read: wanted %d bytes at %#x, got %d: %w", l.ID, size, off, n, zfserr.IOError)
	}
	return buf, nil
}
