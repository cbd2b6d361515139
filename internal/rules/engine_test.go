package rules

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/samples"
)

func openSample(t *testing.T, data []byte) (*bmp.File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bmp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	f, err := bmp.Open(path)
	if err != nil {
		t.Fatalf("open sample: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f, path
}

func newBuiltinEngine() *Engine {
	eng := NewEngine(DefaultRulePack())
	eng.RegisterBuiltins()
	return eng
}

func findRule(t *testing.T, diags []Diagnostic, id string) Diagnostic {
	t.Helper()
	for _, d := range diags {
		if d.RuleId == id {
			return d
		}
	}
	t.Fatalf("diagnostic %s not found", id)
	return Diagnostic{}
}

func TestDefaultRulePackIsValid(t *testing.T) {
	rp := DefaultRulePack()
	if err := rp.Validate(); err != nil {
		t.Fatalf("default rule pack invalid: %v", err)
	}
	eng := newBuiltinEngine()
	for _, r := range rp.Rules {
		if _, ok := eng.registry[r.FixFunc]; !ok {
			t.Fatalf("rule %s references unregistered function %q", r.RuleId, r.FixFunc)
		}
	}
}

func TestEvalWellFormedInfoPasses(t *testing.T) {
	f, path := openSample(t, samples.MinimalInfo())
	eng := newBuiltinEngine()
	var emitted int
	diags, err := eng.Eval(&Context{InputFile: path, Resource: f, Emit: func(Diagnostic) { emitted++ }})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if emitted != len(diags) {
		t.Fatalf("emitted %d of %d diagnostics", emitted, len(diags))
	}
	for _, d := range diags {
		if d.Scope == ScopeCore {
			continue
		}
		if !d.Passed {
			t.Fatalf("%s (%s) failed: %+v", d.RuleId, d.Check, d)
		}
	}
	rep := eng.MakeAcceptance()
	if !rep.Summary.Pass || rep.Summary.Errors != 0 {
		t.Fatalf("unexpected acceptance summary: %+v", rep.Summary)
	}
	if rep.Summary.Variant != "BITMAPINFOHEADER" {
		t.Fatalf("variant = %s", rep.Summary.Variant)
	}
	if d := findRule(t, diags, "BMP-FILE-004"); d.Observed != "0x36" {
		t.Fatalf("data offset observed = %q", d.Observed)
	}
}

func TestEvalCoreSampleDowngradesInfoView(t *testing.T) {
	f, path := openSample(t, samples.BuildCore(4, 2, 24))
	eng := newBuiltinEngine()
	diags, err := eng.Eval(&Context{InputFile: path, Resource: f})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	planes := findRule(t, diags, "BMP-INFO-003")
	if planes.Passed || planes.Severity != INFO {
		t.Fatalf("info view planes should fail without counting: %+v", planes)
	}
	if d := findRule(t, diags, "BMP-CORE-004"); !d.Informational || !d.Passed {
		t.Fatalf("core bits per pixel should be display only: %+v", d)
	}
	rep := eng.MakeAcceptance()
	if !rep.Summary.Pass || rep.Summary.Variant != "BITMAPCOREHEADER" {
		t.Fatalf("unexpected acceptance summary: %+v", rep.Summary)
	}
}

func TestEvalUnknownVariantFails(t *testing.T) {
	data := samples.Corpus()[samples.UnknownVariantName]
	f, path := openSample(t, data)
	eng := newBuiltinEngine()
	diags, err := eng.Eval(&Context{InputFile: path, Resource: f})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	d := findRule(t, diags, "BMP-FILE-005")
	if d.Passed || d.Severity != ERROR || d.Observed != "unknown" {
		t.Fatalf("unexpected detection diagnostic: %+v", d)
	}
	if rep := eng.MakeAcceptance(); rep.Summary.Pass {
		t.Fatalf("unknown variant must not pass acceptance")
	}
}

func TestFixFileSizeConfirmed(t *testing.T) {
	data := samples.Corpus()[samples.BadFileSizeName]
	f, path := openSample(t, data)
	eng := newBuiltinEngine()
	var asked []string
	ctx := &Context{
		InputFile: path,
		Resource:  f,
		Patcher:   bmp.NewPatcher(f, nil),
		Confirm: func(d Diagnostic) bool {
			asked = append(asked, d.RuleId)
			return true
		},
	}
	diags, err := eng.Eval(ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(asked) != 1 || asked[0] != "BMP-FILE-002" {
		t.Fatalf("confirm asked for %v", asked)
	}
	d := findRule(t, diags, "BMP-FILE-002")
	if !d.FixSuggested || !d.FixApplied {
		t.Fatalf("fix not applied: %+v", d)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if v := binary.LittleEndian.Uint32(got[2:6]); int(v) != len(got) {
		t.Fatalf("file size field = %d, want %d", v, len(got))
	}
	if rep := eng.MakeAcceptance(); rep.Summary.Fixed != 1 {
		t.Fatalf("fixed = %d", rep.Summary.Fixed)
	}

	again, err := newBuiltinEngine().Eval(&Context{InputFile: path, Resource: f})
	if err != nil {
		t.Fatalf("re-Eval: %v", err)
	}
	if d := findRule(t, again, "BMP-FILE-002"); !d.Passed {
		t.Fatalf("file size still failing after fix: %+v", d)
	}
}

func TestFixDeclinedLeavesFileUntouched(t *testing.T) {
	data := samples.Corpus()[samples.BadHeaderSizeName]
	f, path := openSample(t, data)
	eng := newBuiltinEngine()
	diags, err := eng.Eval(&Context{
		InputFile: path,
		Resource:  f,
		Patcher:   bmp.NewPatcher(f, nil),
		Confirm:   func(Diagnostic) bool { return false },
	})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	d := findRule(t, diags, "BMP-FILE-003")
	if d.Passed || !d.FixSuggested || d.FixApplied || d.Severity != ERROR {
		t.Fatalf("unexpected header size diagnostic: %+v", d)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data) {
		t.Fatalf("declined fix modified the file")
	}
	if rep := eng.MakeAcceptance(); rep.Summary.Pass || rep.Summary.Errors != 1 {
		t.Fatalf("unexpected acceptance summary: %+v", rep.Summary)
	}
}

func TestCorrectHeaderSizeWritesCoupledOffset(t *testing.T) {
	data := samples.Corpus()[samples.BadHeaderSizeName]
	f, path := openSample(t, data)
	diags, err := newBuiltinEngine().Eval(&Context{
		InputFile: path,
		Resource:  f,
		Patcher:   bmp.NewPatcher(f, nil),
		Confirm:   func(Diagnostic) bool { return true },
	})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if d := findRule(t, diags, "BMP-FILE-003"); !d.FixApplied {
		t.Fatalf("header size fix not applied: %+v", d)
	}
	got, _ := os.ReadFile(path)
	if v := binary.LittleEndian.Uint32(got[0x0E:0x12]); v != 40 {
		t.Fatalf("header size = %d", v)
	}
	if v := binary.LittleEndian.Uint32(got[0x0A:0x0E]); v != 36 {
		t.Fatalf("data offset = %d", v)
	}
}

func TestDryRunSuggestsWithoutWriting(t *testing.T) {
	data := samples.Corpus()[samples.BadFileSizeName]
	f, path := openSample(t, data)
	diags, err := newBuiltinEngine().Eval(&Context{
		InputFile: path,
		Resource:  f,
		Patcher:   bmp.NewPatcher(f, nil),
		Confirm:   func(Diagnostic) bool { return true },
		DryRun:    true,
	})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	d := findRule(t, diags, "BMP-FILE-002")
	if !d.FixSuggested || d.FixApplied {
		t.Fatalf("dry run applied a fix: %+v", d)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data) {
		t.Fatalf("dry run modified the file")
	}
}

func TestUnknownCompressionReported(t *testing.T) {
	data := samples.BuildInfo(samples.InfoSpec{Width: 1, Height: 1, BitsPerPixel: 24, Compression: 7})
	f, path := openSample(t, data)
	diags, err := newBuiltinEngine().Eval(&Context{InputFile: path, Resource: f})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	d := findRule(t, diags, "BMP-INFO-005")
	if d.Passed || d.Severity != ERROR || d.Label != "" || d.Observed != "7 (7)" {
		t.Fatalf("unexpected compression diagnostic: %+v", d)
	}
}

func TestMisconfiguredRuleIsReported(t *testing.T) {
	f, path := openSample(t, samples.MinimalInfo())
	eng := NewEngine(RulePack{Rules: []Rule{
		{RuleId: "X-1", Scope: ScopeInfo, FixFunc: "ReportField"},
		{RuleId: "X-2", Scope: ScopeFile, FixFunc: "CheckPlanes"},
		{RuleId: "X-3", Scope: ScopeFile, FixFunc: "NoSuchFunction"},
	}})
	eng.RegisterBuiltins()
	diags, err := eng.Eval(&Context{InputFile: path, Resource: f})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(diags) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d", len(diags))
	}
	if diags[0].Severity != ERROR || diags[1].Severity != ERROR {
		t.Fatalf("misconfigured rules should be errors: %+v", diags[:2])
	}
	if diags[2].Severity != WARN || diags[2].Message != "no function for rule" {
		t.Fatalf("unexpected missing function diagnostic: %+v", diags[2])
	}
}

func TestWriteDiagnosticsNDJSON(t *testing.T) {
	f, path := openSample(t, samples.MinimalInfo())
	eng := newBuiltinEngine()
	diags, err := eng.Eval(&Context{InputFile: path, Resource: f})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	outPath := filepath.Join(t.TempDir(), "diagnostics.jsonl")
	if err := eng.WriteDiagnosticsNDJSON(outPath); err != nil {
		t.Fatalf("WriteDiagnosticsNDJSON failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := bytesTrimSplit(data)
	if len(lines) != len(diags) {
		t.Fatalf("expected %d diagnostics, got %d", len(diags), len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("unmarshal first line failed: %v", err)
	}
	if first["ruleId"] != "BMP-FILE-001" || first["passed"] != true {
		t.Fatalf("unexpected first diagnostic: %v", first)
	}
}

func TestLoadRulePack(t *testing.T) {
	rp, err := LoadRulePack("")
	if err != nil || len(rp.Rules) == 0 {
		t.Fatalf("empty path should load the default pack: %v", err)
	}

	dir := t.TempDir()
	write := func(name string, v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, b, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return p
	}
	good := write("good.json", RulePack{RulePackId: "small", Rules: []Rule{{RuleId: "A", Scope: ScopeFile, FixFunc: "CheckSignature"}}})
	rp, err = LoadRulePack(good)
	if err != nil || rp.RulePackId != "small" || len(rp.Rules) != 1 {
		t.Fatalf("LoadRulePack(good) = %+v, %v", rp, err)
	}
	dup := write("dup.json", RulePack{Rules: []Rule{{RuleId: "A", Scope: ScopeFile}, {RuleId: "A", Scope: ScopeFile}}})
	if _, err := LoadRulePack(dup); err == nil {
		t.Fatalf("expected duplicate ruleId error")
	}
	scope := write("scope.json", RulePack{Rules: []Rule{{RuleId: "A", Scope: "packet"}}})
	if _, err := LoadRulePack(scope); err == nil {
		t.Fatalf("expected scope error")
	}
}

func bytesTrimSplit(in []byte) [][]byte {
	in = bytes.TrimSpace(in)
	if len(in) == 0 {
		return nil
	}
	parts := bytes.Split(in, []byte{'\n'})
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		p = bytes.TrimSpace(p)
		if len(p) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func TestEvalAmbiguousDetectionWarns(t *testing.T) {
	f, path := openSample(t, samples.AmbiguousInfo())
	eng := newBuiltinEngine()
	diags, err := eng.Eval(&Context{InputFile: path, Resource: f})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	d := findRule(t, diags, "BMP-FILE-005")
	if !d.Passed || d.Severity != WARN || d.Observed != "BITMAPINFOHEADER" {
		t.Fatalf("unexpected detection diagnostic: %+v", d)
	}
	rep := eng.MakeAcceptance()
	if !rep.Summary.Ambiguous || !rep.Summary.Pass || rep.Summary.Warnings != 1 {
		t.Fatalf("unexpected acceptance summary: %+v", rep.Summary)
	}
}
