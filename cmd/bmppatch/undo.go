package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/common"
)

func newUndoCmd(a *app) *cobra.Command {
	var in, audit, out string
	cmd := &cobra.Command{
		Use:   "undo --in <patched.bmp> --audit <audit.jsonl> --out <restored.bmp>",
		Short: "Restore the bytes recorded in an audit log",
		Long: `The undo command copies the patched file to --out and writes back the
original bytes of every audit entry recorded for --in, newest first. Entries
for other files in a shared log are skipped. The patched file itself is not
modified, so --out must name a different file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" || audit == "" || out == "" {
				return fmt.Errorf("required: --in, --audit, --out")
			}
			cmd.SilenceUsage = true
			return a.runUndo(in, audit, out)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Patched bitmap")
	cmd.Flags().StringVar(&audit, "audit", "", "Audit log (jsonl)")
	cmd.Flags().StringVar(&out, "out", "", "Restored output file")
	return cmd
}

func (a *app) runUndo(in, audit, out string) error {
	if common.SameFile(in, out) {
		return fmt.Errorf("undo: %w: --out must differ from --in", common.ErrSameFile)
	}
	all, err := common.ReadPatchLog(audit)
	if err != nil {
		return fmt.Errorf("read audit: %w", err)
	}
	if len(all) == 0 {
		return fmt.Errorf("audit log is empty")
	}
	entries, foreign := common.EntriesFor(all, in)
	if len(entries) == 0 {
		return fmt.Errorf("audit log %s has no entries for %s", audit, in)
	}
	patchedHash, _, err := common.Sha256OfFile(in)
	if err != nil {
		return fmt.Errorf("hash input: %w", err)
	}
	if err := common.CopyFile(in, out); err != nil {
		return fmt.Errorf("copy input: %w", err)
	}
	f, err := bmp.Open(out)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	res, err := common.Revert(f, entries)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	restoredHash, _, err := common.Sha256OfFile(out)
	if err != nil {
		return fmt.Errorf("hash restored: %w", err)
	}

	if a.jsonOut {
		return a.printJSON(map[string]interface{}{
			"restored":       res.Applied,
			"skipped":        res.Skipped,
			"otherFiles":     foreign,
			"mismatches":     res.Mismatches,
			"patchedSha256":  patchedHash,
			"restoredSha256": restoredHash,
			"out":            out,
		})
	}
	a.printInfo("Restored %d patch(es) to %s\n", res.Applied, out)
	if foreign > 0 {
		a.printInfo("Skipped %d audit entries recorded for other files\n", foreign)
	}
	a.printInfo("Patched SHA256: %s\n", patchedHash)
	a.printInfo("Restored SHA256: %s\n", restoredHash)
	if res.Mismatches > 0 {
		a.printInfo("Warning: %d patch(es) did not match expected fixed bytes; original bytes reapplied regardless.\n", res.Mismatches)
	}
	return nil
}
