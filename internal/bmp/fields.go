package bmp

import (
	"fmt"
	"strings"
)

// Variant identifies the DIB header layout following the 14 byte file header.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantCore            // BITMAPCOREHEADER, 12 bytes
	VariantInfo            // BITMAPINFOHEADER, 40 bytes or larger
)

func (v Variant) String() string {
	switch v {
	case VariantCore:
		return "BITMAPCOREHEADER"
	case VariantInfo:
		return "BITMAPINFOHEADER"
	default:
		return "unknown"
	}
}

// ParseVariant accepts the short names used on the command line.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core", "bitmapcoreheader":
		return VariantCore, nil
	case "info", "bitmapinfoheader":
		return VariantInfo, nil
	default:
		return VariantUnknown, fmt.Errorf("unknown header variant %q", s)
	}
}

// Field describes a fixed-width little-endian integer at an absolute offset.
type Field struct {
	Name   string
	Label  string
	Offset int64
	Width  int
	Signed bool
}

func (f Field) String() string {
	kind := "u"
	if f.Signed {
		kind = "i"
	}
	return fmt.Sprintf("%s@0x%02X(%s%d)", f.Name, f.Offset, kind, f.Width*8)
}

// Header layout constants.
const (
	FileHeaderSize     = 14
	CoreHeaderSize     = 12
	InfoHeaderSize     = 40
	SignatureOffset    = 0x00
	SignatureLength    = 2
	CoreProbeOffset    = 0x16
	InfoProbeOffset    = 0x1A
	RecommendedHdrSize = 40
	// RecommendedDataOffset is the data offset written together with
	// RecommendedHdrSize by CorrectHeaderSize.
	RecommendedDataOffset = RecommendedHdrSize - 4
)

// File header fields shared by both variants.
var (
	FieldFileSize   = Field{Name: "file_size", Label: "File size", Offset: 0x02, Width: 4}
	FieldDataOffset = Field{Name: "data_offset", Label: "Data offset", Offset: 0x0A, Width: 4}
	FieldHeaderSize = Field{Name: "header_size", Label: "Header size", Offset: 0x0E, Width: 4}
)

var coreFields = []Field{
	{Name: "width", Label: "Bitmap width", Offset: 0x12, Width: 2},
	{Name: "height", Label: "Bitmap height", Offset: 0x14, Width: 2},
	{Name: "planes", Label: "Color plane count", Offset: 0x16, Width: 2},
	{Name: "bits_per_pixel", Label: "Bits per pixel", Offset: 0x18, Width: 2},
}

var infoFields = []Field{
	{Name: "width", Label: "Bitmap width", Offset: 0x12, Width: 4, Signed: true},
	{Name: "height", Label: "Bitmap height", Offset: 0x16, Width: 4, Signed: true},
	{Name: "planes", Label: "Color plane count", Offset: 0x1A, Width: 2},
	{Name: "bits_per_pixel", Label: "Bits per pixel", Offset: 0x1C, Width: 2},
	{Name: "compression", Label: "Compression method", Offset: 0x1E, Width: 4},
	{Name: "image_size", Label: "Image size", Offset: 0x22, Width: 4},
	{Name: "x_resolution", Label: "Horizontal resolution", Offset: 0x26, Width: 4, Signed: true},
	{Name: "y_resolution", Label: "Vertical resolution", Offset: 0x2A, Width: 4, Signed: true},
	{Name: "colors_used", Label: "Colors in color palette", Offset: 0x2E, Width: 4},
	{Name: "colors_important", Label: "Number of important colors", Offset: 0x32, Width: 4},
}

// Fields returns the ordered DIB header descriptors for v. The returned slice
// is a copy.
func Fields(v Variant) []Field {
	var src []Field
	switch v {
	case VariantCore:
		src = coreFields
	case VariantInfo:
		src = infoFields
	default:
		return nil
	}
	out := make([]Field, len(src))
	copy(out, src)
	return out
}

// FileHeaderFields returns the integer fields of the BITMAPFILEHEADER plus the
// header size that opens every DIB header.
func FileHeaderFields() []Field {
	return []Field{FieldFileSize, FieldDataOffset, FieldHeaderSize}
}

// FieldByName finds a descriptor of variant v.
func FieldByName(v Variant, name string) (Field, bool) {
	for _, f := range Fields(v) {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// LookupField resolves a field name against the file header first and then
// the DIB header of variant v.
func LookupField(v Variant, name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range FileHeaderFields() {
		if f.Name == name {
			return f, nil
		}
	}
	if f, ok := FieldByName(v, name); ok {
		return f, nil
	}
	return Field{}, fmt.Errorf("no field %q in %s", name, v)
}

// MustField is FieldByName for descriptors known to exist.
func MustField(v Variant, name string) Field {
	f, ok := FieldByName(v, name)
	if !ok {
		panic(fmt.Sprintf("bmp: no field %q in %s", name, v))
	}
	return f
}
