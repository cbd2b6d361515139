package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"example.com/bmppatch/internal/common"
	"example.com/bmppatch/internal/config"
	"example.com/bmppatch/internal/session"
)

// app holds the global flags and the state set up before every command.
type app struct {
	configPath string
	verbose    bool
	quiet      bool
	jsonOut    bool
	auditPath  string
	noAudit    bool
	backup     bool

	cfg       config.Config
	logCloser io.Closer
	out       io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bmppatch <file.bmp>",
		Short: "Inspect and patch BMP file headers in place",
		Long: `bmppatch validates the file header and the BITMAPCOREHEADER or
BITMAPINFOHEADER of a Windows bitmap, offers to correct the file size and
header size, and then patches individual header fields from a numbered menu.

Example:
  bmppatch image.bmp
  bmppatch check image.bmp --acceptance acceptance.json --pdf report.pdf
  bmppatch set image.bmp bits_per_pixel 24`,
		Version:       "0.1.0",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return a.runInteractive(cmd, args[0])
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file (default $"+config.EnvPath+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log to stderr")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress all output except errors")
	flags.BoolVar(&a.jsonOut, "json", false, "Output in JSON format")
	flags.StringVar(&a.auditPath, "audit-log", "", "Audit log for header writes (overrides config)")
	flags.BoolVar(&a.noAudit, "no-audit", false, "Do not record header writes")
	flags.BoolVar(&a.backup, "backup", false, "Keep a copy of the file before the first write")

	root.AddCommand(
		newCheckCmd(a),
		newSetCmd(a),
		newFieldsCmd(a),
		newUndoCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	cfg, err := config.Load(a.configPath)
	if err != nil {
		cmd.SilenceUsage = true
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	closer, err := common.SetupLogging(common.LogOptions{
		Directory:  cfg.Logs.Directory,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
		Quiet:      !a.verbose,
	})
	if err != nil {
		cmd.SilenceUsage = true
		return err
	}
	a.logCloser = closer
	return nil
}

func (a *app) teardown() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

// auditLog resolves where writes to path are recorded. Nil disables auditing.
func (a *app) auditLog(path string) *common.PatchLog {
	if a.noAudit {
		return nil
	}
	if a.auditPath != "" {
		return common.NewPatchLog(a.auditPath)
	}
	if p := a.cfg.AuditPath(path); p != "" {
		return common.NewPatchLog(p)
	}
	return nil
}

func (a *app) backupSuffix() string {
	if a.backup || a.cfg.Backup.Enabled {
		return a.cfg.Backup.Suffix
	}
	return ""
}

func (a *app) runInteractive(cmd *cobra.Command, path string) error {
	rp, err := loadRulePack(a.cfg.Rules)
	if err != nil {
		return err
	}
	_, err = session.Run(cmd.Context(), session.Options{
		Path:         path,
		In:           cmd.InOrStdin(),
		Out:          cmd.OutOrStdout(),
		RulePack:     rp,
		AuditLog:     a.auditLog(path),
		BackupSuffix: a.backupSuffix(),
	})
	return err
}

// printInfo prints an info message if not in quiet mode
func (a *app) printInfo(format string, args ...interface{}) {
	if !a.quiet {
		fmt.Fprintf(a.out, format, args...)
	}
}

// printJSON outputs data as JSON
func (a *app) printJSON(v interface{}) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
