package bmp

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/bmppatch/internal/samples"
)

func TestApplyIndependentField(t *testing.T) {
	f := openSample(t, samples.MinimalInfo())
	p := NewPatcher(f, nil)

	bpp := MustField(VariantInfo, "bits_per_pixel")
	_, err := p.Apply(PatchRequest{Field: bpp, Value: 8})
	require.NoError(t, err)
	writes, err := p.Apply(PatchRequest{Field: bpp, Value: 24})
	require.NoError(t, err)
	require.Len(t, writes, 1)
	require.Equal(t, []byte{8, 0}, writes[0].Before)
	require.Equal(t, []byte{24, 0}, writes[0].After)

	got, err := ReadField(f, bpp)
	require.NoError(t, err)
	require.Equal(t, int64(24), got)
}

func TestApplySignedField(t *testing.T) {
	f := openSample(t, samples.MinimalInfo())
	p := NewPatcher(f, nil)
	height := MustField(VariantInfo, "height")

	_, err := p.Apply(PatchRequest{Field: height, Value: -16})
	require.NoError(t, err)
	got, err := ReadField(f, height)
	require.NoError(t, err)
	require.Equal(t, int64(-16), got)

	raw, err := ReadBytes(f, height.Offset, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xF0, 0xFF, 0xFF, 0xFF}, raw)
}

func TestApplyRejectsOutOfRange(t *testing.T) {
	before := samples.MinimalInfo()
	f := openSample(t, before)
	p := NewPatcher(f, nil)

	_, err := p.Apply(PatchRequest{Field: MustField(VariantCore, "width"), Value: 70000})
	require.ErrorIs(t, err, ErrValueRange)
	_, err = p.Apply(PatchRequest{Field: MustField(VariantInfo, "compression"), Value: -1})
	require.ErrorIs(t, err, ErrValueRange)

	after, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestCorrectHeaderSize(t *testing.T) {
	data := samples.PutUint32(samples.MinimalInfo(), 0x0E, 41)
	f := openSample(t, data)
	p := NewPatcher(f, nil)

	require.False(t, ValidateHeaderSize(41).Passed)
	writes, err := p.CorrectHeaderSize()
	require.NoError(t, err)
	require.Len(t, writes, 2)

	size, err := ReadUint32(f, 0x0E)
	require.NoError(t, err)
	require.Equal(t, uint32(40), size)
	offset, err := ReadUint32(f, 0x0A)
	require.NoError(t, err)
	require.Equal(t, uint32(36), offset)
	require.True(t, ValidateHeaderSize(size).Passed)
}

func TestSetHeaderSizeCoupledAndIdempotent(t *testing.T) {
	f := openSample(t, samples.MinimalInfo())
	p := NewPatcher(f, nil)

	_, err := p.Apply(PatchRequest{Field: FieldHeaderSize, Value: 108})
	require.NoError(t, err)
	first, err := os.ReadFile(f.Path())
	require.NoError(t, err)

	writes, err := p.Apply(PatchRequest{Field: FieldHeaderSize, Value: 108})
	require.NoError(t, err)
	for _, w := range writes {
		require.False(t, w.Changed())
	}
	second, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	require.Equal(t, first, second)

	offset, err := ReadUint32(f, 0x0A)
	require.NoError(t, err)
	require.Equal(t, uint32(104), offset)
}

func TestSetHeaderSizeRejectsUnderflow(t *testing.T) {
	f := openSample(t, samples.MinimalInfo())
	_, err := NewPatcher(f, nil).SetHeaderSize(3)
	require.ErrorIs(t, err, ErrValueRange)
}

func TestFixFileSize(t *testing.T) {
	data := samples.PutUint32(samples.MinimalInfo(), 2, 999)
	f := openSample(t, data)
	reported, err := ReadUint32(f, 2)
	require.NoError(t, err)
	require.False(t, ValidateFileSize(reported, int64(len(data))).Passed)

	_, err = NewPatcher(f, nil).FixFileSize()
	require.NoError(t, err)

	reported, err = ReadUint32(f, 2)
	require.NoError(t, err)
	size, err := f.Size()
	require.NoError(t, err)
	require.True(t, ValidateFileSize(reported, size).Passed)
}

func TestObserverSeesWritesAndCanVeto(t *testing.T) {
	f := openSample(t, samples.MinimalInfo())
	var seen []Write
	p := NewPatcher(f, func(w Write) error {
		seen = append(seen, w)
		return nil
	})
	_, err := p.CorrectHeaderSize()
	require.NoError(t, err)
	require.Len(t, seen, 2)
	require.Equal(t, "header_size", seen[0].Field.Name)
	require.Equal(t, "data_offset", seen[1].Field.Name)

	veto := errors.New("audit unavailable")
	p = NewPatcher(f, func(Write) error { return veto })
	_, err = p.Apply(PatchRequest{Field: MustField(VariantInfo, "width"), Value: 9})
	require.ErrorIs(t, err, veto)
	width, err := ReadField(f, MustField(VariantInfo, "width"))
	require.NoError(t, err)
	require.Equal(t, int64(0), width)
}

// failingResource reads like a well-formed header but rejects every write.
type failingResource struct {
	data []byte
	err  error
}

func (r *failingResource) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, r.data[off:]), nil
}

func (r *failingResource) WriteAt([]byte, int64) (int, error) { return 0, r.err }

func (r *failingResource) Size() (int64, error) { return int64(len(r.data)), nil }

func TestCommitRunsOnlyAfterWriteLands(t *testing.T) {
	diskFull := errors.New("no space left on device")
	res := &failingResource{data: samples.MinimalInfo(), err: diskFull}
	observed, committed := 0, 0
	p := NewPatcher(res, func(Write) error { observed++; return nil })
	p.OnCommit(func(Write) { committed++ })
	_, err := p.Apply(PatchRequest{Field: MustField(VariantInfo, "width"), Value: 3})
	require.ErrorIs(t, err, diskFull)
	require.Equal(t, 1, observed)
	require.Equal(t, 0, committed)

	f := openSample(t, samples.MinimalInfo())
	var names []string
	p = NewPatcher(f, nil)
	p.OnCommit(func(w Write) { names = append(names, w.Field.Name) })
	_, err = p.SetHeaderSize(108)
	require.NoError(t, err)
	require.Equal(t, []string{"header_size", "data_offset"}, names)
}

func TestFileWriteAtFlushes(t *testing.T) {
	f := openSample(t, samples.MinimalInfo())
	n, err := f.WriteAt([]byte{0x08, 0x00}, 0x1C)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	require.Equal(t, []byte{0x08, 0x00}, data[0x1C:0x1E])
}

func TestOpenRejectsMissingAndDirectories(t *testing.T) {
	_, err := Open("/nonexistent/path.bmp")
	require.ErrorIs(t, err, ErrResourceNotFound)
	_, err = Open(t.TempDir())
	require.ErrorIs(t, err, ErrResourceNotFound)
}

func TestParseValue(t *testing.T) {
	width := MustField(VariantCore, "width")
	v, err := ParseValue(width, "640")
	require.NoError(t, err)
	require.Equal(t, int64(640), v)
	v, err = ParseValue(width, "0x10")
	require.NoError(t, err)
	require.Equal(t, int64(16), v)
	_, err = ParseValue(width, "-1")
	require.Error(t, err)
	_, err = ParseValue(width, "65536")
	require.ErrorIs(t, err, ErrValueRange)
	_, err = ParseValue(width, "abc")
	require.Error(t, err)

	v, err = ParseValue(MustField(VariantInfo, "height"), "-480")
	require.NoError(t, err)
	require.Equal(t, int64(-480), v)
}
