package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/common"
	"example.com/bmppatch/internal/report"
	"example.com/bmppatch/internal/rules"
	"example.com/bmppatch/internal/session"
)

type checkOptions struct {
	out        string
	acceptance string
	pdf        string
	rules      string
	fix        bool
	dryRun     bool
}

func newCheckCmd(a *app) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check <file.bmp>",
		Short: "Run the header checks without prompting",
		Long: `The check command evaluates the rule pack against a bitmap and writes
diagnostics and an acceptance summary. With --fix the file size and header
size corrections are applied without asking.

Example:
  bmppatch check image.bmp
  bmppatch check image.bmp --out diagnostics.jsonl --acceptance acceptance.json
  bmppatch check image.bmp --fix --pdf report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return a.runCheck(args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.out, "out", "", "Write diagnostics as JSON lines")
	cmd.Flags().StringVar(&opts.acceptance, "acceptance", "", "Write the acceptance summary as JSON")
	cmd.Flags().StringVar(&opts.pdf, "pdf", "", "Write the acceptance summary as PDF")
	cmd.Flags().StringVar(&opts.rules, "rules", "", "Rule pack JSON (overrides config)")
	cmd.Flags().BoolVar(&opts.fix, "fix", false, "Apply fixable corrections")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report the corrections --fix would apply")
	return cmd
}

func loadRulePack(path string) (rules.RulePack, error) {
	rp, err := rules.LoadRulePack(path)
	if err != nil {
		return rp, fmt.Errorf("load rule pack: %w", err)
	}
	return rp, nil
}

func (a *app) runCheck(path string, opts *checkOptions) error {
	rulesPath := opts.rules
	if rulesPath == "" {
		rulesPath = a.cfg.Rules
	}
	rp, err := loadRulePack(rulesPath)
	if err != nil {
		return err
	}
	f, err := bmp.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rec := session.NewRecorder(path, a.auditLog(path), a.backupSuffix(), nil)
	engine := rules.NewEngine(rp)
	engine.RegisterBuiltins()
	ctx := &rules.Context{
		InputFile: path,
		Resource:  f,
		Patcher:   rec.Patcher(f),
		DryRun:    opts.dryRun,
		Confirm: func(d rules.Diagnostic) bool {
			if opts.fix {
				rec.SetOrigin(d.RuleId)
			}
			return opts.fix
		},
	}
	diags, err := engine.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}

	rep := engine.MakeAcceptance()
	if hash, _, err := common.Sha256OfFile(path); err == nil {
		rep.Summary.SHA256 = hash
	} else {
		common.Logf("hash %s: %v", path, err)
	}
	if opts.out != "" {
		if err := engine.WriteDiagnosticsNDJSON(opts.out); err != nil {
			return fmt.Errorf("write diags: %w", err)
		}
	}
	if opts.acceptance != "" {
		if err := report.SaveAcceptanceJSON(rep, opts.acceptance); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if opts.pdf != "" {
		if err := report.SaveAcceptancePDF(rep, opts.pdf); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
	}

	if a.jsonOut {
		return a.printJSON(rep)
	}
	for _, d := range diags {
		if d.Passed && !d.FixSuggested {
			continue
		}
		line := fmt.Sprintf("%s %s", d.RuleId, d.Check)
		if d.Observed != "" {
			line += ": " + d.Observed
		}
		if d.Message != "" {
			line += " - " + d.Message
		}
		a.printInfo("%-5s %s\n", d.Severity, line)
	}
	a.printInfo("PASS=%v, variant=%s, errors=%d, warnings=%d, fixed=%d, diagnostics=%d\n",
		rep.Summary.Pass, rep.Summary.Variant, rep.Summary.Errors, rep.Summary.Warnings, rep.Summary.Fixed, len(diags))
	return nil
}
