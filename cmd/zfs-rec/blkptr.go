package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsblkptr"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfscodec"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsprim"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

// ptrSpec is one parsed `--ptr` argument (spec.md §6 "block-pointer
// tool"): `<vdev>:<offset>:<lsize>[/<psize>][:<flags>]`.
type ptrSpec struct {
	vdev     string // numeric vdev id, or a literal device path
	offset   int64
	lsize    int64
	psize    int64 // defaults to lsize if not given
	raw      bool  // 'r': write decoded bytes verbatim to stdout
	decomp   bool  // 'd': LZ4-decompress the read bytes to lsize
	cksum    bool  // 'c': print the Fletcher-4 checksum of the read bytes
	asBPList bool  // 'i': interpret the result as an array of 128-byte block pointers
}

func parsePtrSpec(s string) (ptrSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return ptrSpec{}, fmt.Errorf("blkptr: %w: --ptr must be vdev:offset:lsize[/psize][:flags]", errBadPtrSpec)
	}
	var spec ptrSpec
	spec.vdev = parts[0]

	off, err := strconv.ParseInt(parts[1], 0, 64)
	if err != nil {
		return ptrSpec{}, fmt.Errorf("blkptr: offset: %w", err)
	}
	spec.offset = off

	sizeField := parts[2]
	spec.psize = -1
	if idx := strings.IndexByte(sizeField, '/'); idx >= 0 {
		lsize, err := strconv.ParseInt(sizeField[:idx], 0, 64)
		if err != nil {
			return ptrSpec{}, fmt.Errorf("blkptr: lsize: %w", err)
		}
		psize, err := strconv.ParseInt(sizeField[idx+1:], 0, 64)
		if err != nil {
			return ptrSpec{}, fmt.Errorf("blkptr: psize: %w", err)
		}
		spec.lsize, spec.psize = lsize, psize
	} else {
		lsize, err := strconv.ParseInt(sizeField, 0, 64)
		if err != nil {
			return ptrSpec{}, fmt.Errorf("blkptr: lsize: %w", err)
		}
		spec.lsize = lsize
	}
	if spec.psize < 0 {
		spec.psize = spec.lsize
	}

	if len(parts) == 4 {
		for _, f := range parts[3] {
			switch f {
			case 'r':
				spec.raw = true
			case 'd':
				spec.decomp = true
			case 'c':
				spec.cksum = true
			case 'i':
				spec.asBPList = true
			default:
				return ptrSpec{}, fmt.Errorf("blkptr: %w: unknown flag %q", errBadPtrSpec, string(f))
			}
		}
	}
	return spec, nil
}

var errBadPtrSpec = fmt.Errorf("malformed --ptr argument")

// newBlkptrCmd implements `zfs-rec blkptr --ptr
// <vdev>:<offset>:<lsize>[/<psize>][:<flags>] [--config <vdev.json>]`
// (spec.md §6 "block-pointer tool").
func newBlkptrCmd(verbosity *logLevelFlag) *cobra.Command {
	var ptrArg string
	var configPath string

	cmd := &cobra.Command{
		Use:   "blkptr --ptr VDEV:OFFSET:LSIZE[/PSIZE][:FLAGS] [--config PATH]",
		Short: "Read and decode a raw (vdev, offset, size) address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ptrArg == "" {
				return fmt.Errorf("--ptr is required")
			}
			spec, err := parsePtrSpec(ptrArg)
			if err != nil {
				return err
			}
			return runWithLogger(cmd, verbosity, func(ctx context.Context) error {
				return runBlkptr(cmd, spec, configPath)
			})
		},
	}
	cmd.Flags().StringVar(&ptrArg, "ptr", "", "vdev:offset:lsize[/psize][:flags]")
	cmd.Flags().StringVar(&configPath, "config", "", "vdev configuration `path` (required when vdev is a numeric id)")
	return cmd
}

func runBlkptr(cmd *cobra.Command, spec ptrSpec, configPath string) error {
	var topo *zfsvol.Topology
	var vdevID zfsvol.VdevID

	if id, err := strconv.ParseUint(spec.vdev, 0, 64); err == nil {
		if configPath == "" {
			return fmt.Errorf("blkptr: numeric vdev %d requires --config", id)
		}
		cfg, err := zfsvol.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("blkptr: %w", err)
		}
		topo, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("blkptr: %w", err)
		}
		vdevID = zfsvol.VdevID(id)
	} else {
		topo = zfsvol.SingleLeaf(spec.vdev)
		vdevID = 0
	}
	if err := topo.Open(); err != nil {
		return err
	}
	defer topo.Close()

	raw, err := topo.Read(vdevID, spec.offset, spec.psize)
	if err != nil {
		return fmt.Errorf("blkptr: %w", err)
	}

	payload := raw
	if spec.decomp {
		payload, err = zfscodec.LZ4Decompress(raw, int(spec.lsize))
		if err != nil {
			return fmt.Errorf("blkptr: %w", err)
		}
	}

	w := cmd.OutOrStdout()

	if spec.cksum {
		sum, err := zfscodec.Fletcher4(raw)
		if err != nil {
			return fmt.Errorf("blkptr: %w", err)
		}
		if _, err := fmt.Fprintf(w, "fletcher4(raw) = %s\n", sum); err != nil {
			return err
		}
	}

	if spec.asBPList {
		for off := 0; off+zfsblkptr.Size <= len(payload); off += zfsblkptr.Size {
			bp, err := zfsblkptr.Decode(payload[off : off+zfsblkptr.Size])
			if err != nil {
				return fmt.Errorf("blkptr: indirect slot %d: %w", off/zfsblkptr.Size, err)
			}
			if _, err := fmt.Fprintf(w, "slot %d: lvl=%d type=%d comp=%d lsize=%d psize=%d dva0=%s\n",
				off/zfsblkptr.Size, bp.Level, bp.Type, bp.Comp, bp.LSizeBytes, bp.PSizeBytes, firstDVA(bp)); err != nil {
				return err
			}
		}
		return nil
	}

	if spec.raw {
		if f, ok := w.(*os.File); ok {
			if err := refuseTTY(f); err != nil {
				return err
			}
		}
		_, err := w.Write(payload)
		return err
	}

	if !spec.cksum {
		return zfsprim.Hexdump(w, payload)
	}
	return nil
}

func firstDVA(bp *zfsblkptr.BlockPointer) string {
	dvas := bp.ValidDVAs()
	if len(dvas) == 0 {
		return "<none>"
	}
	return dvas[0].String()
}
