package rules

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"example.com/bmppatch/internal/bmp"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

// Rule scopes. View scopes evaluate one header layout whether or not it is the
// detected variant.
const (
	ScopeFile = "file"
	ScopeCore = "core"
	ScopeInfo = "info"
)

type Rule struct {
	RuleId   string         `json:"ruleId"`
	Name     string         `json:"name,omitempty"`
	Scope    string         `json:"scope"` // file|core|info
	Severity Severity       `json:"severity"`
	Fixable  bool           `json:"fixable"`
	FixFunc  string         `json:"fixFunction,omitempty"`
	Refs     []string       `json:"refs"`
	Params   map[string]any `json:"params,omitempty"`
	Message  string         `json:"message"`
}

type RulePack struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
	Profile    string `json:"profile"`
	Rules      []Rule `json:"rules"`
}

type Diagnostic struct {
	Ts            time.Time `json:"ts"`
	File          string    `json:"file"`
	RuleId        string    `json:"ruleId"`
	Scope         string    `json:"scope"`
	Field         string    `json:"field,omitempty"`
	Offset        string    `json:"offset,omitempty"`
	Severity      Severity  `json:"severity"`
	Check         string    `json:"check"`
	Passed        bool      `json:"passed"`
	Informational bool      `json:"informational,omitempty"`
	Observed      string    `json:"observed,omitempty"`
	Expected      string    `json:"expected,omitempty"`
	Label         string    `json:"label,omitempty"`
	Message       string    `json:"message"`
	Refs          []string  `json:"refs"`
	FixSuggested  bool      `json:"fixSuggested"`
	FixApplied    bool      `json:"fixApplied"`
}

type AcceptanceReport struct {
	Summary struct {
		File      string `json:"file"`
		SHA256    string `json:"sha256,omitempty"`
		Variant   string `json:"variant"`
		Ambiguous bool   `json:"ambiguous,omitempty"`
		Total     int    `json:"total"`
		Errors    int    `json:"errors"`
		Warnings  int    `json:"warnings"`
		Fixed     int    `json:"fixed"`
		Pass      bool   `json:"pass"`
	} `json:"summary"`
	Findings []Diagnostic `json:"findings,omitempty"`
}

// Context carries the resource under inspection through one Eval.
type Context struct {
	InputFile string
	Resource  bmp.Resource
	// Patcher performs fixes. A nil Patcher makes every check read-only.
	Patcher *bmp.Patcher
	// Confirm is asked before a fixable failure is corrected. A nil Confirm
	// declines every fix.
	Confirm func(d Diagnostic) bool
	// Emit receives each diagnostic as soon as its rule finishes.
	Emit   func(d Diagnostic)
	DryRun bool

	Detection *bmp.Detection
}

// EnsureDetection probes the variant once per context.
func (ctx *Context) EnsureDetection() error {
	if ctx == nil {
		return errors.New("nil context")
	}
	if ctx.Resource == nil {
		return errors.New("no resource")
	}
	if ctx.Detection != nil {
		return nil
	}
	det, err := bmp.Detect(ctx.Resource)
	if err != nil {
		return err
	}
	ctx.Detection = &det
	return nil
}

// Variant returns the detected variant, or VariantUnknown before detection.
func (ctx *Context) Variant() bmp.Variant {
	if ctx == nil || ctx.Detection == nil {
		return bmp.VariantUnknown
	}
	return ctx.Detection.Variant
}

func (ctx *Context) confirm(d Diagnostic) bool {
	if ctx.Patcher == nil || ctx.Confirm == nil {
		return false
	}
	return ctx.Confirm(d)
}

type Engine struct {
	rulePack    RulePack
	registry    map[string]FixFunc
	diagnostics []Diagnostic
	file        string
	detection   *bmp.Detection
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack: rp,
		registry: make(map[string]FixFunc),
	}
}

type FixFunc func(ctx *Context, rule Rule) (Diagnostic, bool, error)

func (e *Engine) Register(name string, f FixFunc) {
	e.registry[name] = f
}

func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	if err := ctx.EnsureDetection(); err != nil {
		return nil, err
	}
	var diags []Diagnostic
	for _, r := range e.rulePack.Rules {
		if r.FixFunc == "" {
			continue
		}
		var d Diagnostic
		fn, ok := e.registry[r.FixFunc]
		if !ok {
			d = Diagnostic{
				Ts: time.Now(), File: ctx.InputFile, RuleId: r.RuleId, Scope: r.Scope, Severity: WARN,
				Check: r.Name, Message: "no function for rule", Refs: r.Refs,
			}
		} else {
			var applied bool
			var err error
			d, applied, err = fn(ctx, r)
			if err != nil {
				if isIOError(err) {
					e.diagnostics = diags
					return diags, fmt.Errorf("%s: %w", r.RuleId, err)
				}
				d.Severity = ERROR
				d.Message = strings.TrimSpace(d.Message + " (" + err.Error() + ")")
			}
			d.FixApplied = applied
		}
		if ctx.Emit != nil {
			ctx.Emit(d)
		}
		diags = append(diags, d)
	}
	e.diagnostics = diags
	e.file = ctx.InputFile
	e.detection = ctx.Detection
	return diags, nil
}

// isIOError separates resource failures, which end the run, from rejected
// values, which are reported on the diagnostic.
func isIOError(err error) bool {
	return !errors.Is(err, bmp.ErrValueRange) && !errors.Is(err, ErrRuleConfig)
}

// ErrRuleConfig marks a rule whose scope or params do not name a field.
var ErrRuleConfig = errors.New("rule misconfigured")

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, d := range e.diagnostics {
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteString("\n")
	}
	return w.Flush()
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	var errs, warns, fixed int
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			errs++
		case WARN:
			warns++
		}
		if d.FixApplied {
			fixed++
		}
	}
	rep.Summary.File = e.file
	rep.Summary.Variant = bmp.VariantUnknown.String()
	if e.detection != nil {
		rep.Summary.Variant = e.detection.Variant.String()
		rep.Summary.Ambiguous = e.detection.Ambiguous
	}
	rep.Summary.Total = len(e.diagnostics)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Fixed = fixed
	rep.Summary.Pass = errs == 0
	rep.Findings = e.diagnostics
	return rep
}

//go:embed rules.json
var defaultRulePack []byte

// DefaultRulePack returns the built-in rule pack.
func DefaultRulePack() RulePack {
	var rp RulePack
	if err := json.Unmarshal(defaultRulePack, &rp); err != nil {
		panic(fmt.Sprintf("rules: embedded rule pack: %v", err))
	}
	return rp
}

// LoadRulePack reads a rule pack from path. An empty path selects the
// built-in pack.
func LoadRulePack(path string) (RulePack, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRulePack(), nil
	}
	var rp RulePack
	b, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	if err := json.Unmarshal(b, &rp); err != nil {
		return rp, fmt.Errorf("decode rule pack %s: %w", path, err)
	}
	return rp, rp.Validate()
}

// Validate rejects duplicate rule ids and unknown scopes.
func (rp RulePack) Validate() error {
	seen := make(map[string]bool, len(rp.Rules))
	for i, r := range rp.Rules {
		if r.RuleId == "" {
			return fmt.Errorf("rule %d: missing ruleId", i)
		}
		if seen[r.RuleId] {
			return fmt.Errorf("duplicate ruleId %s", r.RuleId)
		}
		seen[r.RuleId] = true
		switch r.Scope {
		case ScopeFile, ScopeCore, ScopeInfo:
		default:
			return fmt.Errorf("rule %s: unknown scope %q", r.RuleId, r.Scope)
		}
	}
	return nil
}
