package zfsvol

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/containers"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdebug"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// Config is the JSON shape of a vdev configuration file (spec.md §6
// "Inputs"): a list of top-level vdev trees.
type Config []ConfigEntry

type ConfigEntry struct {
	VdevTree VdevConfig `json:"vdev_tree"`
}

// VdevConfig is one node of a vdev tree: either a RAID-Z group (with
// Children) or a leaf (with Path).
type VdevConfig struct {
	ID       VdevID                     `json:"id"`
	GUID     uint64                     `json:"guid"`
	Type     string                     `json:"type"` // "raidz", "file", or "disk"
	Ashift   containers.Optional[uint8] `json:"ashift,omitempty"`
	NParity  containers.Optional[int]   `json:"nparity,omitempty"`
	Path     string                     `json:"path,omitempty"`
	Children []VdevConfig               `json:"children,omitempty"`
}

// LoadConfig reads and decodes a vdev configuration file.
func LoadConfig(path string) (Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zfsvol: read config %q: %w: %v", path, zfserr.IOError, err)
	}
	var cfg Config
	if err := json.Unmarshal(bs, &cfg); err != nil {
		return nil, fmt.Errorf("zfsvol: parse config %q: %w: %v", path, zfserr.MalformedInput, err)
	}
	return cfg, nil
}

// Build constructs the Vdev tree (and flat id->leaf map) described by
// a vdev configuration. The result is immutable once built and safe to
// share read-only across a session (spec.md §5).
func (c Config) Build() (*Topology, error) {
	topo := &Topology{
		byID:  make(map[VdevID]Vdev),
		Debug: zfsdebug.FromEnv(),
	}
	for _, entry := range c.VdevTree() {
		v, err := buildVdev(entry, topo)
		if err != nil {
			return nil, err
		}
		topo.roots = append(topo.roots, v)
	}
	return topo, nil
}

// VdevTree returns the top-level vdev config for each entry, for
// symmetry with the JSON shape's outer array-of-objects wrapping.
func (c Config) VdevTree() []VdevConfig {
	out := make([]VdevConfig, len(c))
	for i, e := range c {
		out[i] = e.VdevTree
	}
	return out
}

func buildVdev(cfg VdevConfig, topo *Topology) (Vdev, error) {
	switch cfg.Type {
	case "file", "disk":
		leaf := &Leaf{ID: cfg.ID, Path: cfg.Path}
		topo.byID[cfg.ID] = leaf
		topo.leaves = append(topo.leaves, leaf)
		return leaf, nil
	case "raidz":
		if !cfg.Ashift.OK || !cfg.NParity.OK {
			return nil, fmt.Errorf("zfsvol: vdev %d: %w: raidz requires ashift and nparity", cfg.ID, zfserr.MalformedInput)
		}
		rz := &RaidZ{
			ID:      cfg.ID,
			Ashift:  cfg.Ashift.Val,
			NParity: cfg.NParity.Val,
		}
		for _, child := range cfg.Children {
			cv, err := buildVdev(child, topo)
			if err != nil {
				return nil, err
			}
			rz.Children = append(rz.Children, cv)
		}
		topo.byID[cfg.ID] = rz
		return rz, nil
	default:
		return nil, fmt.Errorf("zfsvol: vdev %d: %w: unsupported vdev type %q", cfg.ID, zfserr.Unsupported, cfg.Type)
	}
}
