package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/bmppatch/internal/rules"
)

const qrImageName = "file-sha256"

// SaveAcceptancePDF renders the given acceptance report into a PDF document.
// When the summary carries a SHA-256 a QR code of it is placed beside the
// summary.
func SaveAcceptancePDF(rep rules.AcceptanceReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("BMP Header Inspection", false)
	pdf.SetAuthor("bmppatch", false)
	pdf.SetCreator("bmppatch", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "BMP Header Inspection")
	if err := addHashQR(pdf, rep.Summary.SHA256); err != nil {
		return err
	}
	addSummarySection(pdf, rep)
	addChecksSection(pdf, rep.Findings)
	addFindingsSection(pdf, rep.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addHashQR(pdf *gofpdf.Fpdf, hash string) error {
	if strings.TrimSpace(hash) == "" {
		return nil
	}
	png, err := FileHashToQR(hash, 256)
	if err != nil {
		return err
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(qrImageName, opt, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions(qrImageName, pageW-right-35, pdf.GetY(), 35, 35, false, opt, 0, "")
	return nil
}

func addSummarySection(pdf *gofpdf.Fpdf, rep rules.AcceptanceReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "File", value: emptyFallback(rep.Summary.File, "-")},
		{label: "Header variant", value: variantLabel(rep)},
		{label: "Total Checks", value: strconv.Itoa(rep.Summary.Total)},
		{label: "Errors", value: strconv.Itoa(rep.Summary.Errors)},
		{label: "Warnings", value: strconv.Itoa(rep.Summary.Warnings)},
		{label: "Fixes Applied", value: strconv.Itoa(rep.Summary.Fixed)},
		{label: "Overall", value: passLabel(rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(100, 6, item.value, "", 1, "L", false, 0, "")
	}
	if rep.Summary.SHA256 != "" {
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(0, 5, "SHA-256 "+rep.Summary.SHA256, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func addChecksSection(pdf *gofpdf.Fpdf, findings []rules.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Checks")
	pdf.Ln(9)

	headers := []string{"Scope", "Offset", "Check", "Observed", "Result"}
	widths := []float64{18, 18, 66, 52, 26}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, d := range findings {
		values := []string{
			d.Scope,
			d.Offset,
			emptyFallback(d.Check, d.RuleId),
			d.Observed,
			resultLabel(d),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

// addFindingsSection lists the diagnostics that did not pass or carry a
// message.
func addFindingsSection(pdf *gofpdf.Fpdf, findings []rules.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	n := 0
	for _, d := range findings {
		if d.Passed && strings.TrimSpace(d.Message) == "" {
			continue
		}
		n++
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", n, d.RuleId, severityLabel(d.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}

		meta := findingMetadata(d)
		if meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}

		if len(d.Refs) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, "Refs: "+strings.Join(d.Refs, ", "), "", "L", false)
		}

		pdf.Ln(2)
	}
	if n == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func resultLabel(d rules.Diagnostic) string {
	switch {
	case d.FixApplied:
		return "FIXED"
	case d.Informational:
		return "INFO"
	default:
		return passLabel(d.Passed)
	}
}

func variantLabel(rep rules.AcceptanceReport) string {
	v := emptyFallback(rep.Summary.Variant, "-")
	if rep.Summary.Ambiguous {
		v += " (ambiguous)"
	}
	return v
}

func severityLabel(sev rules.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func findingMetadata(d rules.Diagnostic) string {
	parts := make([]string, 0, 5)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	if d.Field != "" {
		parts = append(parts, "Field "+d.Field)
	}
	if d.Offset != "" {
		parts = append(parts, "Offset "+d.Offset)
	}
	if d.Observed != "" {
		parts = append(parts, "Observed "+d.Observed)
	}
	if d.Expected != "" {
		parts = append(parts, "Expected "+d.Expected)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " | ")
}
