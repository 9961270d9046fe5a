package zfsvol

import (
	"fmt"
	"os"

	"github.com/datawire/dlib/derror"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdebug"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// Topology is the immutable, built-once vdev tree for a pool. It is
// passed by reference through the traversal; nothing below this layer
// mutates it (spec.md §5).
type Topology struct {
	roots  []Vdev
	byID   map[VdevID]Vdev
	leaves []*Leaf

	// Debug carries the per-subsystem verbosity knobs spec.md §6
	// names; every layer that receives a *Topology can reach it to
	// emit gated debug lines without its own env-parsing copy.
	Debug *zfsdebug.Config
}

// SingleLeaf builds a trivial one-device topology directly from a
// file path, for the common case (spec.md §9's CLI surface) of
// pointing a tool at one backing device without a JSON config.
func SingleLeaf(path string) *Topology {
	leaf := &Leaf{ID: 0, Path: path}
	return &Topology{
		roots:  []Vdev{leaf},
		byID:   map[VdevID]Vdev{0: leaf},
		leaves: []*Leaf{leaf},
		Debug:  zfsdebug.FromEnv(),
	}
}

// DebugPrintf forwards to Debug.Printf against os.Stderr, the sink
// spec.md §6 names for diagnostic output ("Diagnostic messages are
// written to stderr"). Every layer downstream of the topology
// (zfsblkptr, zfsdmu, zfszap) calls this rather than importing "os"
// and zfsdebug itself, and it tolerates a nil *Topology so the hole
// and embedded-pointer fast paths (reachable in tests without ever
// building one) stay debug-print-safe.
func (t *Topology) DebugPrintf(sub zfsdebug.Subsystem, lvl int, format string, args ...any) {
	if t == nil {
		return
	}
	t.Debug.Printf(os.Stderr, sub, lvl, format, args...)
}

// Vdev looks up a top-level (or nested RAID-Z child) vdev by id.
func (t *Topology) Vdev(id VdevID) (Vdev, error) {
	v, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("zfsvol: vdev %d: %w", id, zfserr.NotFound)
	}
	return v, nil
}

// Read performs a logical read against a named vdev, rounding the
// request up to the vdev's minimum block size and truncating the
// result back down to the caller's exact ioSize (spec.md §4.2 "Top-level
// read_vdev").
func (t *Topology) Read(id VdevID, ioOffset, ioSize int64) ([]byte, error) {
	v, err := t.Vdev(id)
	if err != nil {
		return nil, err
	}
	min := v.MinBlock()
	rounded := roundUpInt64(ioSize, min)
	t.DebugPrintf(zfsdebug.Vdev, 1, "read vdev %s off=%#x size=%#x (rounded %#x)", v.Name(), ioOffset, ioSize, rounded)
	buf, err := v.ReadAt(ioOffset, rounded)
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) < ioSize {
		return nil, fmt.Errorf("zfsvol: vdev %d: %w: short read", id, zfserr.IOError)
	}
	return buf[:ioSize], nil
}

// Open opens every leaf's backing file up front, for callers that
// want to avoid the open/seek/read/close-per-call overhead
// Leaf.ReadAt otherwise pays; correctness does not depend on this
// (spec.md §5).
func (t *Topology) Open() error {
	for _, l := range t.leaves {
		if err := l.Open(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Topology) Close() error {
	var errs derror.MultiError
	for _, l := range t.leaves {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}
	return nil
}

// Leaves returns every leaf vdev in the topology, in build order —
// used by the label scanner, which only ever looks at leaves (RAID-Z
// parents have no label of their own).
func (t *Topology) Leaves() []*Leaf {
	return t.leaves
}
