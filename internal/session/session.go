// Package session drives one interactive inspection of a bitmap: the check
// report with confirmed fixes, followed by the patch menu of the detected
// header variant.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/common"
	"example.com/bmppatch/internal/rules"
)

const (
	passMark = "[🗸]"
	failMark = "[ ]"
	infoMark = "   "
)

type Options struct {
	Path     string
	In       io.Reader
	Out      io.Writer
	RulePack rules.RulePack
	// AuditLog receives every write. Nil disables auditing.
	AuditLog *common.PatchLog
	// BackupSuffix enables a copy of the file before the first write.
	BackupSuffix string
}

// Outcome summarizes a finished session.
type Outcome struct {
	Variant bmp.Variant
	Writes  int
	// Exited is set when the user chose the exit command rather than ending
	// input.
	Exited bool
}

type session struct {
	path    string
	file    *bmp.File
	in      *bufio.Scanner
	out     io.Writer
	rec     *Recorder
	patcher *bmp.Patcher
	rp      rules.RulePack
	// inErr holds an input failure seen while prompting for a fix.
	inErr error

	lastScope string
}

// Run opens opts.Path and runs the session until the user exits or input ends.
// Errors from the resource end the session; rejected values do not.
func Run(ctx context.Context, opts Options) (outcome Outcome, err error) {
	f, err := bmp.Open(opts.Path)
	if err != nil {
		return outcome, err
	}
	defer f.Close()

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	in := opts.In
	if in == nil {
		in = strings.NewReader("")
	}
	rp := opts.RulePack
	if len(rp.Rules) == 0 {
		rp = rules.DefaultRulePack()
	}

	s := &session{
		path: opts.Path,
		file: f,
		in:   bufio.NewScanner(in),
		out:  out,
		rec:  NewRecorder(opts.Path, opts.AuditLog, opts.BackupSuffix, out),
		rp:   rp,
	}
	s.patcher = s.rec.Patcher(f)
	defer func() { outcome.Writes = s.rec.Writes() }()

	common.Logf("session start %s", opts.Path)
	variant, err := s.report()
	outcome.Variant = variant
	if err != nil {
		return outcome, err
	}
	if variant == bmp.VariantUnknown {
		fmt.Fprintln(s.out, "The header matches neither layout; no patch menu is offered.")
		return outcome, nil
	}
	outcome.Exited, err = s.loop(ctx, variant)
	common.Logf("session end %s (%d writes)", opts.Path, s.rec.Writes())
	return outcome, err
}

func (s *session) report() (bmp.Variant, error) {
	eng := rules.NewEngine(s.rp)
	eng.RegisterBuiltins()
	rctx := &rules.Context{
		InputFile: s.path,
		Resource:  s.file,
		Patcher:   s.patcher,
		Confirm:   s.confirm,
		Emit:      s.emit,
	}
	if _, err := eng.Eval(rctx); err != nil {
		return bmp.VariantUnknown, err
	}
	if s.inErr != nil {
		return rctx.Variant(), s.inErr
	}
	s.rec.SetOrigin("")
	return rctx.Variant(), nil
}

func (s *session) section(scope string) {
	if scope == s.lastScope {
		return
	}
	defer func() { s.lastScope = scope }()
	switch scope {
	case rules.ScopeCore:
		fmt.Fprintf(s.out, "\nAs %s:\n", bmp.VariantCore)
	case rules.ScopeInfo:
		fmt.Fprintf(s.out, "\nAs %s:\n", bmp.VariantInfo)
	default:
		if s.lastScope != "" {
			fmt.Fprintln(s.out)
		}
	}
}

func (s *session) emit(d rules.Diagnostic) {
	if d.FixSuggested {
		if d.FixApplied {
			fmt.Fprintf(s.out, "    fixed: %s\n", d.Message)
		} else {
			fmt.Fprintln(s.out, "    left unchanged")
		}
		return
	}
	s.section(d.Scope)
	fmt.Fprintln(s.out, formatLine(d))
	if d.Passed && d.Severity == rules.WARN {
		fmt.Fprintf(s.out, "    warning: %s\n", d.Message)
	}
}

func (s *session) confirm(d rules.Diagnostic) bool {
	s.section(d.Scope)
	fmt.Fprintln(s.out, formatLine(d))
	fmt.Fprintf(s.out, "    %s (y/N) ", fixPrompt(d))
	answer, err := s.readLine()
	if err != nil {
		if err != io.EOF {
			s.inErr = err
		}
		fmt.Fprintln(s.out)
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		s.rec.SetOrigin(d.RuleId)
		return true
	}
	return false
}

func fixPrompt(d rules.Diagnostic) string {
	switch d.Field {
	case bmp.FieldFileSize.Name:
		return fmt.Sprintf("Set the file size field to the actual length (%s)?", d.Expected)
	case bmp.FieldHeaderSize.Name:
		return fmt.Sprintf("Set header size to %d and data offset to %d?", bmp.RecommendedHdrSize, bmp.RecommendedDataOffset)
	}
	return "Apply fix?"
}

func formatLine(d rules.Diagnostic) string {
	mark := failMark
	switch {
	case d.Informational:
		mark = infoMark
	case d.Passed:
		mark = passMark
	}
	var b strings.Builder
	b.WriteString(mark)
	b.WriteString(" ")
	b.WriteString(d.Check)
	if d.Observed != "" {
		b.WriteString(": ")
		b.WriteString(d.Observed)
	}
	if !d.Passed && d.Expected != "" {
		fmt.Fprintf(&b, " (expected %s)", d.Expected)
	}
	return b.String()
}

func (s *session) loop(ctx context.Context, variant bmp.Variant) (bool, error) {
	cmds := Commands(variant)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		s.printMenu(variant, cmds)
		token, err := s.readLine()
		if err == io.EOF {
			fmt.Fprintln(s.out)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(token) == ExitToken {
			return true, nil
		}
		cmd, ok := Lookup(cmds, token)
		if !ok {
			fmt.Fprintf(s.out, "Unknown command %q\n", token)
			continue
		}
		fmt.Fprintf(s.out, "New value for %s: ", strings.ToLower(cmd.Label()))
		text, err := s.readLine()
		if err == io.EOF {
			fmt.Fprintln(s.out)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if err := s.apply(cmd, text); err != nil {
			if errors.Is(err, bmp.ErrValueRange) || errors.Is(err, errBadValue) {
				fmt.Fprintf(s.out, "Value rejected: %v\n", err)
				continue
			}
			return false, err
		}
	}
}

var errBadValue = errors.New("bad value")

func (s *session) apply(cmd Command, text string) error {
	v, err := bmp.ParseValue(cmd.Field, text)
	if err != nil {
		if errors.Is(err, bmp.ErrValueRange) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadValue, err)
	}
	s.rec.SetOrigin("menu:" + strings.ToUpper(cmd.Token))
	defer s.rec.SetOrigin("")
	if cmd.Coupled {
		_, err = s.patcher.SetHeaderSize(v)
	} else {
		_, err = s.patcher.Apply(bmp.PatchRequest{Field: cmd.Field, Value: v})
	}
	return err
}

func (s *session) printMenu(variant bmp.Variant, cmds []Command) {
	fmt.Fprintf(s.out, "\nPatch %s:\n", variant)
	for _, c := range cmds {
		fmt.Fprintf(s.out, "  %s) %s\n", c.Token, c.Label())
	}
	fmt.Fprintf(s.out, "  %s) Exit\n", ExitToken)
	fmt.Fprint(s.out, "Choice: ")
}

// readLine returns the next trimmed input line, io.EOF when input ends, or the
// reader's error.
func (s *session) readLine() (string, error) {
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimSpace(s.in.Text()), nil
}
