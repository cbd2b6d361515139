package samples

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const (
	fileHeaderSize = 14
	coreHeaderSize = 12
	infoHeaderSize = 40

	// File names exposed for generator consumers.
	InfoFileName       = "info.bmp"
	CoreFileName       = "core.bmp"
	BadFileSizeName    = "bad_file_size.bmp"
	BadHeaderSizeName  = "bad_header_size.bmp"
	UnknownVariantName = "unknown_variant.bmp"
)

// InfoSpec describes a BITMAPINFOHEADER sample.
type InfoSpec struct {
	Width        int32
	Height       int32
	BitsPerPixel uint16
	Compression  uint32
	XPelsPerM    int32
	YPelsPerM    int32
}

// BuildInfo constructs an uncompressed BITMAPINFOHEADER bitmap whose file
// size, data offset and image size are consistent. Pixel bytes are zero.
func BuildInfo(s InfoSpec) []byte {
	if s.BitsPerPixel == 0 {
		s.BitsPerPixel = 24
	}
	height := s.Height
	if height < 0 {
		height = -height
	}
	stride := ((int(s.Width)*int(s.BitsPerPixel) + 31) / 32) * 4
	imageSize := stride * int(height)
	offBits := fileHeaderSize + infoHeaderSize
	total := offBits + imageSize

	buf := make([]byte, total)
	putFileHeader(buf, uint32(total), uint32(offBits))
	binary.LittleEndian.PutUint32(buf[14:18], infoHeaderSize)
	binary.LittleEndian.PutUint32(buf[18:22], uint32(s.Width))
	binary.LittleEndian.PutUint32(buf[22:26], uint32(s.Height))
	binary.LittleEndian.PutUint16(buf[26:28], 1)
	binary.LittleEndian.PutUint16(buf[28:30], s.BitsPerPixel)
	binary.LittleEndian.PutUint32(buf[30:34], s.Compression)
	binary.LittleEndian.PutUint32(buf[34:38], uint32(imageSize))
	binary.LittleEndian.PutUint32(buf[38:42], uint32(s.XPelsPerM))
	binary.LittleEndian.PutUint32(buf[42:46], uint32(s.YPelsPerM))
	return buf
}

// MinimalInfo is a 54 byte well-formed BITMAPINFOHEADER file without pixels.
func MinimalInfo() []byte {
	return BuildInfo(InfoSpec{Width: 0, Height: 0, BitsPerPixel: 24})
}

// AmbiguousInfo is a one pixel BITMAPINFOHEADER file. Its height of 1 puts a
// 1 at 0x16, so the plane count reads 1 at both candidate offsets.
func AmbiguousInfo() []byte {
	return BuildInfo(InfoSpec{Width: 1, Height: 1, BitsPerPixel: 24})
}

// BuildCore constructs a BITMAPCOREHEADER bitmap. Pixel bytes are filled with
// 0xFF so the BITMAPINFOHEADER plane probe at 0x1A never reads 1.
func BuildCore(width, height, bitsPerPixel uint16) []byte {
	stride := ((int(width)*int(bitsPerPixel) + 31) / 32) * 4
	imageSize := stride * int(height)
	offBits := fileHeaderSize + coreHeaderSize
	total := offBits + imageSize
	if total < 0x1C {
		total = 0x1C
	}
	buf := make([]byte, total)
	for i := offBits; i < total; i++ {
		buf[i] = 0xFF
	}
	putFileHeader(buf, uint32(total), uint32(offBits))
	binary.LittleEndian.PutUint32(buf[14:18], coreHeaderSize)
	binary.LittleEndian.PutUint16(buf[18:20], width)
	binary.LittleEndian.PutUint16(buf[20:22], height)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint16(buf[24:26], bitsPerPixel)
	return buf
}

func putFileHeader(buf []byte, size, offBits uint32) {
	buf[0], buf[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(buf[2:6], size)
	binary.LittleEndian.PutUint32(buf[10:14], offBits)
}

// PutUint16 overwrites a little-endian uint16 in data, for building corrupted
// samples.
func PutUint16(data []byte, off int, v uint16) []byte {
	binary.LittleEndian.PutUint16(data[off:off+2], v)
	return data
}

// PutUint32 overwrites a little-endian uint32 in data.
func PutUint32(data []byte, off int, v uint32) []byte {
	binary.LittleEndian.PutUint32(data[off:off+4], v)
	return data
}

// Corpus returns every generated sample keyed by file name.
func Corpus() map[string][]byte {
	info := BuildInfo(InfoSpec{Width: 4, Height: 2, BitsPerPixel: 24, XPelsPerM: 2835, YPelsPerM: 2835})
	badSize := BuildInfo(InfoSpec{Width: 4, Height: 2, BitsPerPixel: 24})
	PutUint32(badSize, 2, uint32(len(badSize)+100))
	badHeader := BuildInfo(InfoSpec{Width: 4, Height: 2, BitsPerPixel: 24})
	PutUint32(badHeader, 14, 41)
	unknown := BuildInfo(InfoSpec{Width: 4, Height: 2, BitsPerPixel: 24})
	PutUint16(unknown, 0x1A, 3)
	return map[string][]byte{
		InfoFileName:       info,
		CoreFileName:       BuildCore(4, 2, 24),
		BadFileSizeName:    badSize,
		BadHeaderSizeName:  badHeader,
		UnknownVariantName: unknown,
	}
}

// WriteFiles materializes the generated samples under dir and returns their
// paths.
func WriteFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	corpus := Corpus()
	var paths []string
	for _, name := range []string{InfoFileName, CoreFileName, BadFileSizeName, BadHeaderSizeName, UnknownVariantName} {
		path := filepath.Join(dir, name)
		if err := writeFileIfChanged(path, corpus[name]); err != nil {
			return paths, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFileIfChanged(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
