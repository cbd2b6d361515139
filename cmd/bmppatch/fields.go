package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/session"
)

func newFieldsCmd(a *app) *cobra.Command {
	var variantName string
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the header fields and menu tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			variants := []bmp.Variant{bmp.VariantCore, bmp.VariantInfo}
			if variantName != "" {
				v, err := bmp.ParseVariant(variantName)
				if err != nil {
					return err
				}
				variants = []bmp.Variant{v}
			}
			return a.runFields(variants)
		},
	}
	cmd.Flags().StringVar(&variantName, "variant", "", "Header variant (core|info)")
	return cmd
}

type fieldRow struct {
	Token  string `json:"token,omitempty"`
	Name   string `json:"name"`
	Label  string `json:"label"`
	Offset string `json:"offset"`
	Type   string `json:"type"`
	// Valid lists the values the checks accept, when the field has a fixed set.
	Valid []string `json:"valid,omitempty"`
}

func rowOf(fd bmp.Field, token string) fieldRow {
	kind := "u"
	if fd.Signed {
		kind = "i"
	}
	return fieldRow{
		Token:  token,
		Name:   fd.Name,
		Label:  fd.Label,
		Offset: fmt.Sprintf("0x%02X", fd.Offset),
		Type:   fmt.Sprintf("%s%d", kind, fd.Width*8),
	}
}

// validValues returns the accepted values of fd in variant v, or nil when the
// field is not checked against a set.
func validValues(v bmp.Variant, fd bmp.Field) []string {
	var vals []string
	switch {
	case fd.Offset == bmp.FieldHeaderSize.Offset && fd.Width == bmp.FieldHeaderSize.Width:
		for _, n := range bmp.ValidHeaderSizes() {
			vals = append(vals, strconv.FormatUint(uint64(n), 10))
		}
	case v == bmp.VariantInfo && fd.Name == "bits_per_pixel":
		for _, n := range bmp.ValidBitsPerPixel() {
			vals = append(vals, strconv.FormatUint(uint64(n), 10))
		}
	case v == bmp.VariantInfo && fd.Name == "compression":
		for _, c := range bmp.CompressionCodes() {
			name, _ := bmp.CompressionName(c)
			vals = append(vals, fmt.Sprintf("%d=%s", c, name))
		}
	}
	return vals
}

func (a *app) runFields(variants []bmp.Variant) error {
	tables := make(map[string][]fieldRow)
	var header []fieldRow
	for _, fd := range bmp.FileHeaderFields() {
		row := rowOf(fd, "")
		row.Valid = validValues(bmp.VariantUnknown, fd)
		header = append(header, row)
	}
	tables["file"] = header
	for _, v := range variants {
		tokens := make(map[string]string)
		for _, c := range session.Commands(v) {
			if !c.Coupled {
				tokens[c.Field.Name] = c.Token
			}
		}
		var rows []fieldRow
		for _, fd := range bmp.Fields(v) {
			row := rowOf(fd, tokens[fd.Name])
			row.Valid = validValues(v, fd)
			rows = append(rows, row)
		}
		for _, c := range session.Commands(v) {
			if c.Coupled {
				row := rowOf(c.Field, c.Token)
				row.Label = c.Label()
				row.Valid = validValues(v, c.Field)
				rows = append(rows, row)
			}
		}
		tables[v.String()] = rows
	}
	if a.jsonOut {
		return a.printJSON(tables)
	}

	printTable := func(title string, rows []fieldRow) {
		a.printInfo("%s:\n", title)
		for _, r := range rows {
			token := r.Token
			if token == "" {
				token = "-"
			}
			a.printInfo("  %-2s %-18s %-5s %-4s %s\n", token, r.Name, r.Offset, r.Type, r.Label)
			if len(r.Valid) > 0 {
				a.printInfo("     valid: %s\n", strings.Join(r.Valid, ", "))
			}
		}
	}
	printTable("File header", header)
	for _, v := range variants {
		a.printInfo("\n")
		printTable(v.String(), tables[v.String()])
	}
	return nil
}
