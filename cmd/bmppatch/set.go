package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/session"
)

func newSetCmd(a *app) *cobra.Command {
	var variantName string
	cmd := &cobra.Command{
		Use:   "set <file.bmp> <field> <value>",
		Short: "Patch one header field",
		Long: `The set command writes a single header field. Setting header_size also
sets data_offset to the new size minus 4. Values may be decimal or 0x hex.

Example:
  bmppatch set image.bmp bits_per_pixel 24
  bmppatch set image.bmp header_size 108
  bmppatch set image.bmp height -- -480
  bmppatch set image.bmp width 320 --variant core`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return a.runSet(args[0], args[1], args[2], variantName)
		},
	}
	cmd.Flags().StringVar(&variantName, "variant", "", "Header variant (core|info); detected when omitted")
	return cmd
}

func (a *app) runSet(path, fieldName, valueText, variantName string) error {
	f, err := bmp.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	variant := bmp.VariantUnknown
	if variantName != "" {
		if variant, err = bmp.ParseVariant(variantName); err != nil {
			return err
		}
	} else {
		det, err := bmp.Detect(f)
		if err != nil {
			return fmt.Errorf("detect variant: %w", err)
		}
		variant = det.Variant
	}
	fd, err := bmp.LookupField(variant, fieldName)
	if err != nil {
		return err
	}
	value, err := bmp.ParseValue(fd, valueText)
	if err != nil {
		return err
	}

	rec := session.NewRecorder(path, a.auditLog(path), a.backupSuffix(), nil)
	rec.SetOrigin("set:" + strings.ToLower(fd.Name))
	writes, err := rec.Patcher(f).Apply(bmp.PatchRequest{Field: fd, Value: value})
	if err != nil {
		return err
	}

	if a.jsonOut {
		type written struct {
			Field  string `json:"field"`
			Offset string `json:"offset"`
			Value  int64  `json:"value"`
			Before string `json:"before"`
			After  string `json:"after"`
		}
		result := struct {
			File    string    `json:"file"`
			Variant string    `json:"variant"`
			Writes  []written `json:"writes"`
		}{File: path, Variant: variant.String()}
		for _, w := range writes {
			result.Writes = append(result.Writes, written{
				Field:  w.Field.Name,
				Offset: fmt.Sprintf("0x%02X", w.Field.Offset),
				Value:  w.Value,
				Before: fmt.Sprintf("%x", w.Before),
				After:  fmt.Sprintf("%x", w.After),
			})
		}
		return a.printJSON(result)
	}
	for _, w := range writes {
		a.printInfo("%s at 0x%02X: %x -> %x (%d)\n", w.Field.Name, w.Field.Offset, w.Before, w.After, w.Value)
	}
	a.printInfo("✓ %d write(s) to %s\n", len(writes), path)
	return nil
}
