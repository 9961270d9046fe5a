package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsdump"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfslabel"
	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfsvol"
)

// newLabelCmd implements `zfs-rec label --dev <path>... --dump
// {nvlist|uberblock}` (spec.md §6 "label tool").
func newLabelCmd(verbosity *logLevelFlag) *cobra.Command {
	var devs []string
	var dump string

	cmd := &cobra.Command{
		Use:   "label --dev PATH... --dump {nvlist|uberblock}",
		Short: "Dump a pool's per-device label region",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(devs) == 0 {
				return fmt.Errorf("--dev is required")
			}
			switch dump {
			case "nvlist", "uberblock":
			default:
				return fmt.Errorf("--dump must be %q or %q, got %q", "nvlist", "uberblock", dump)
			}
			return runWithLogger(cmd, verbosity, func(ctx context.Context) error {
				return runLabel(cmd, devs, dump)
			})
		},
	}
	cmd.Flags().StringArrayVar(&devs, "dev", nil, "backing device `path` (may be repeated)")
	cmd.Flags().StringVar(&dump, "dump", "", "what to dump: nvlist or uberblock")
	return cmd
}

func runLabel(cmd *cobra.Command, devs []string, dump string) error {
	w := cmd.OutOrStdout()

	switch dump {
	case "nvlist":
		// spec.md §6: "nvlist emits JSON of every device's NV-list";
		// the JSON rendering is an external-collaborator concern
		// (spec.md §1), so this prints the same data as indented
		// text via zfsdump.DumpNVList (SPEC_FULL.md §7).
		for _, path := range devs {
			topo := zfsvol.SingleLeaf(path)
			if err := topo.Open(); err != nil {
				return err
			}
			label, err := zfslabel.ReadLabel(topo.Leaves()[0], 0)
			if err != nil {
				_ = topo.Close()
				return fmt.Errorf("label: %s: %w", path, err)
			}
			if _, err := fmt.Fprintf(w, "%s:\n", path); err != nil {
				_ = topo.Close()
				return err
			}
			if err := zfsdump.DumpNVList(w, label.Config, 1); err != nil {
				_ = topo.Close()
				return err
			}
			if err := topo.Close(); err != nil {
				return err
			}
		}
		return nil

	case "uberblock":
		// spec.md §6: "uberblock prints non-empty uberblocks for the
		// first device".
		path := devs[0]
		topo := zfsvol.SingleLeaf(path)
		if err := topo.Open(); err != nil {
			return err
		}
		defer topo.Close()
		label, err := zfslabel.ReadLabel(topo.Leaves()[0], 0)
		if err != nil {
			return fmt.Errorf("label: %s: %w", path, err)
		}
		for _, ub := range label.Uberblocks {
			if !ub.Valid() {
				continue
			}
			if _, err := fmt.Fprintf(w, "slot %d: txg=%d guid_sum=%#x timestamp=%d\n",
				ub.Slot, ub.Txg, ub.GUIDSum, ub.Timestamp); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}
