package bmp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Signature is the two byte magic at the start of every BMP file.
const Signature = "BM"

var compressionMethods = map[uint32]string{
	0:  "BI_RGB",
	1:  "BI_RLE8",
	2:  "BI_RLE4",
	3:  "BI_BITFIELDS",
	4:  "BI_JPEG",
	5:  "BI_PNG",
	6:  "BI_ALPHABITFIELDS",
	11: "BI_CMYK",
	12: "BI_CMYKRLE8",
	13: "BI_CMYKRLE4",
}

var validBitsPerPixel = []uint16{1, 4, 8, 16, 24, 32}

var validHeaderSizes = []uint32{12, 16, 40, 52, 56, 64, 108, 124}

// Result is the verdict of one check. It is rendered and discarded.
type Result struct {
	Check    string
	Passed   bool
	Value    int64
	Observed string
	Expected string
	// Label is the symbolic name of an enumerated value, when known.
	Label string
}

// CompressionName resolves a compression code to its symbolic name.
func CompressionName(v uint32) (string, bool) {
	name, ok := compressionMethods[v]
	return name, ok
}

// CompressionCodes lists the known compression codes in ascending order.
func CompressionCodes() []uint32 {
	codes := make([]uint32, 0, len(compressionMethods))
	for c := range compressionMethods {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// ValidBitsPerPixel returns the bit depths accepted for BITMAPINFOHEADER.
func ValidBitsPerPixel() []uint16 {
	return append([]uint16(nil), validBitsPerPixel...)
}

// ValidHeaderSizes returns the DIB header sizes of every published variant.
func ValidHeaderSizes() []uint32 {
	return append([]uint32(nil), validHeaderSizes...)
}

// SignatureText renders raw signature bytes using the Windows-1252 code page.
func SignatureText(b []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return fmt.Sprintf("% X", b)
	}
	return strconv.Quote(string(out))
}

func ValidateSignature(b []byte) Result {
	return Result{
		Check:    "File signature",
		Passed:   string(b) == Signature,
		Observed: SignatureText(b),
		Expected: strconv.Quote(Signature),
	}
}

func ValidateFileSize(reported uint32, actual int64) Result {
	return Result{
		Check:    "File size",
		Passed:   int64(reported) == actual,
		Value:    int64(reported),
		Observed: strconv.FormatUint(uint64(reported), 10),
		Expected: strconv.FormatInt(actual, 10),
	}
}

func ValidateHeaderSize(v uint32) Result {
	passed := false
	for _, s := range validHeaderSizes {
		if s == v {
			passed = true
			break
		}
	}
	return Result{
		Check:    "Header size valid",
		Passed:   passed,
		Value:    int64(v),
		Observed: strconv.FormatUint(uint64(v), 10),
		Expected: "one of " + joinUint32(validHeaderSizes),
	}
}

func ValidatePlanes(v uint16) Result {
	return Result{
		Check:    "Color plane count == 1",
		Passed:   v == 1,
		Value:    int64(v),
		Observed: withHex(int64(v)),
		Expected: "1",
	}
}

// ValidateBitsPerPixel checks the bit depth. BITMAPCOREHEADER depths are
// displayed but never rejected.
func ValidateBitsPerPixel(v uint16, variant Variant) Result {
	res := Result{
		Check:    "Bits per pixel",
		Passed:   true,
		Value:    int64(v),
		Observed: withHex(int64(v)),
	}
	if variant != VariantInfo {
		return res
	}
	res.Passed = false
	for _, b := range validBitsPerPixel {
		if b == v {
			res.Passed = true
			break
		}
	}
	parts := make([]string, len(validBitsPerPixel))
	for i, b := range validBitsPerPixel {
		parts[i] = strconv.Itoa(int(b))
	}
	res.Expected = "one of " + strings.Join(parts, ", ")
	return res
}

func ValidateCompression(v uint32) Result {
	name, ok := CompressionName(v)
	res := Result{
		Check:    "Known compression method",
		Passed:   ok,
		Value:    int64(v),
		Observed: withHex(int64(v)),
		Expected: "one of 0-6, 11-13",
	}
	if ok {
		res.Label = name
		res.Observed = name
	}
	return res
}

// Informational wraps a displayed-only value. It always passes; an image size
// of zero is legal for BI_RGB bitmaps.
func Informational(fd Field, v int64) Result {
	return Result{
		Check:    fd.Label,
		Passed:   true,
		Value:    v,
		Observed: withHex(v),
	}
}

func withHex(v int64) string {
	if v < 0 {
		return fmt.Sprintf("%d (%x)", v, uint32(int32(v)))
	}
	return fmt.Sprintf("%d (%x)", v, v)
}

func joinUint32(vals []uint32) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ", ")
}
