package rules

import (
	"fmt"
	"strings"
	"time"

	"example.com/bmppatch/internal/bmp"
)

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckSignature", CheckSignature)
	e.Register("FixFileSize", FixFileSize)
	e.Register("CorrectHeaderSize", CorrectHeaderSize)
	e.Register("ReportDataOffset", ReportDataOffset)
	e.Register("CheckPlanes", CheckPlanes)
	e.Register("CheckBitsPerPixel", CheckBitsPerPixel)
	e.Register("CheckCompression", CheckCompression)
	e.Register("ReportField", ReportField)
	e.Register("DetectVariant", DetectVariant)
}

func newDiag(ctx *Context, rule Rule) Diagnostic {
	return Diagnostic{
		Ts:       time.Now(),
		File:     ctx.InputFile,
		RuleId:   rule.RuleId,
		Scope:    rule.Scope,
		Severity: INFO,
		Check:    rule.Name,
		Refs:     rule.Refs,
	}
}

func withField(d Diagnostic, fd bmp.Field) Diagnostic {
	d.Field = fd.Name
	d.Offset = fmt.Sprintf("0x%02X", fd.Offset)
	if d.Check == "" {
		d.Check = fd.Label
	}
	return d
}

// applyResult copies a validator verdict onto d. Failures in a view that is
// not the detected variant stay informational.
func applyResult(ctx *Context, rule Rule, d Diagnostic, res bmp.Result) Diagnostic {
	if d.Check == "" {
		d.Check = res.Check
	}
	d.Passed = res.Passed
	d.Observed = res.Observed
	d.Expected = res.Expected
	d.Label = res.Label
	if res.Passed {
		d.Severity = INFO
		return d
	}
	d.Severity = rule.Severity
	if d.Severity == "" {
		d.Severity = ERROR
	}
	d.Message = rule.Message
	if v := viewVariant(rule); v != bmp.VariantUnknown && v != ctx.Variant() {
		d.Severity = INFO
		d.Message = strings.TrimSpace(d.Message + " (not the detected layout)")
	}
	return d
}

func viewVariant(rule Rule) bmp.Variant {
	switch rule.Scope {
	case ScopeCore:
		return bmp.VariantCore
	case ScopeInfo:
		return bmp.VariantInfo
	}
	return bmp.VariantUnknown
}

// viewField resolves the descriptor a view rule inspects: params.field when
// set, otherwise fallback.
func viewField(rule Rule, fallback string) (bmp.Field, error) {
	name := fallback
	if v, ok := rule.Params["field"].(string); ok && v != "" {
		name = v
	}
	v := viewVariant(rule)
	if v == bmp.VariantUnknown {
		return bmp.Field{}, fmt.Errorf("%w: rule %s: scope %q has no header view", ErrRuleConfig, rule.RuleId, rule.Scope)
	}
	fd, err := bmp.LookupField(v, name)
	if err != nil {
		return bmp.Field{}, fmt.Errorf("%w: rule %s: %v", ErrRuleConfig, rule.RuleId, err)
	}
	return fd, nil
}

func CheckSignature(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	d := newDiag(ctx, rule)
	d.Offset = "0x00"
	b, err := bmp.ReadBytes(ctx.Resource, bmp.SignatureOffset, bmp.SignatureLength)
	if err != nil {
		return d, false, fmt.Errorf("read signature: %w", err)
	}
	return applyResult(ctx, rule, d, bmp.ValidateSignature(b)), false, nil
}

func FixFileSize(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	d := withField(newDiag(ctx, rule), bmp.FieldFileSize)
	reported, err := bmp.ReadUint32(ctx.Resource, bmp.FieldFileSize.Offset)
	if err != nil {
		return d, false, fmt.Errorf("read file size: %w", err)
	}
	actual, err := ctx.Resource.Size()
	if err != nil {
		return d, false, fmt.Errorf("stat resource: %w", err)
	}
	d = applyResult(ctx, rule, d, bmp.ValidateFileSize(reported, actual))
	if d.Passed || !rule.Fixable {
		return d, false, nil
	}
	d.FixSuggested = true
	if ctx.DryRun {
		d.Message = fmt.Sprintf("would set file size to %d", actual)
		return d, false, nil
	}
	if !ctx.confirm(d) {
		return d, false, nil
	}
	if _, err := ctx.Patcher.FixFileSize(); err != nil {
		return d, false, err
	}
	d.Severity = INFO
	d.Message = fmt.Sprintf("file size set to %d", actual)
	return d, true, nil
}

func CorrectHeaderSize(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	d := withField(newDiag(ctx, rule), bmp.FieldHeaderSize)
	v, err := bmp.ReadUint32(ctx.Resource, bmp.FieldHeaderSize.Offset)
	if err != nil {
		return d, false, fmt.Errorf("read header size: %w", err)
	}
	d = applyResult(ctx, rule, d, bmp.ValidateHeaderSize(v))
	if d.Passed || !rule.Fixable {
		return d, false, nil
	}
	d.FixSuggested = true
	if ctx.DryRun {
		d.Message = fmt.Sprintf("would set header size to %d and data offset to %d",
			bmp.RecommendedHdrSize, bmp.RecommendedDataOffset)
		return d, false, nil
	}
	if !ctx.confirm(d) {
		return d, false, nil
	}
	if _, err := ctx.Patcher.CorrectHeaderSize(); err != nil {
		return d, false, err
	}
	d.Severity = INFO
	d.Message = fmt.Sprintf("header size set to %d, data offset set to %d",
		bmp.RecommendedHdrSize, bmp.RecommendedDataOffset)
	return d, true, nil
}

func ReportDataOffset(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	d := withField(newDiag(ctx, rule), bmp.FieldDataOffset)
	v, err := bmp.ReadUint32(ctx.Resource, bmp.FieldDataOffset.Offset)
	if err != nil {
		return d, false, fmt.Errorf("read data offset: %w", err)
	}
	d.Passed = true
	d.Informational = true
	d.Observed = fmt.Sprintf("0x%X", v)
	return d, false, nil
}

func CheckPlanes(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	fd, err := viewField(rule, "planes")
	if err != nil {
		return newDiag(ctx, rule), false, err
	}
	d := withField(newDiag(ctx, rule), fd)
	v, err := bmp.ReadUint16(ctx.Resource, fd.Offset)
	if err != nil {
		return d, false, fmt.Errorf("read %s: %w", fd.Name, err)
	}
	return applyResult(ctx, rule, d, bmp.ValidatePlanes(v)), false, nil
}

func CheckBitsPerPixel(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	fd, err := viewField(rule, "bits_per_pixel")
	if err != nil {
		return newDiag(ctx, rule), false, err
	}
	d := withField(newDiag(ctx, rule), fd)
	v, err := bmp.ReadUint16(ctx.Resource, fd.Offset)
	if err != nil {
		return d, false, fmt.Errorf("read %s: %w", fd.Name, err)
	}
	res := bmp.ValidateBitsPerPixel(v, viewVariant(rule))
	d = applyResult(ctx, rule, d, res)
	// BITMAPCOREHEADER depths are shown without a verdict.
	d.Informational = res.Expected == ""
	return d, false, nil
}

func CheckCompression(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	fd, err := viewField(rule, "compression")
	if err != nil {
		return newDiag(ctx, rule), false, err
	}
	d := withField(newDiag(ctx, rule), fd)
	v, err := bmp.ReadUint32(ctx.Resource, fd.Offset)
	if err != nil {
		return d, false, fmt.Errorf("read %s: %w", fd.Name, err)
	}
	return applyResult(ctx, rule, d, bmp.ValidateCompression(v)), false, nil
}

// ReportField displays params.field of the rule's view without judging it.
func ReportField(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	name, _ := rule.Params["field"].(string)
	if name == "" {
		return newDiag(ctx, rule), false, fmt.Errorf("%w: rule %s has no params.field", ErrRuleConfig, rule.RuleId)
	}
	fd, err := viewField(rule, name)
	if err != nil {
		return newDiag(ctx, rule), false, err
	}
	d := withField(newDiag(ctx, rule), fd)
	v, err := bmp.ReadField(ctx.Resource, fd)
	if err != nil {
		return d, false, fmt.Errorf("read %s: %w", fd.Name, err)
	}
	d = applyResult(ctx, rule, d, bmp.Informational(fd, v))
	d.Informational = true
	return d, false, nil
}

func DetectVariant(ctx *Context, rule Rule) (Diagnostic, bool, error) {
	d := newDiag(ctx, rule)
	if err := ctx.EnsureDetection(); err != nil {
		return d, false, err
	}
	det := *ctx.Detection
	if d.Check == "" {
		d.Check = "Header variant"
	}
	d.Observed = det.Variant.String()
	d.Passed = det.Variant != bmp.VariantUnknown
	switch {
	case !d.Passed:
		d.Severity = rule.Severity
		d.Message = fmt.Sprintf("color plane count is %d at 0x%02X and %d at 0x%02X; neither layout applies",
			det.CorePlanes, bmp.CoreProbeOffset, det.InfoPlanes, bmp.InfoProbeOffset)
	case det.Ambiguous:
		d.Severity = WARN
		d.Message = fmt.Sprintf("color plane count is 1 at both 0x16 and 0x1A; treating the header as %s", det.Variant)
	}
	return d, false, nil
}
