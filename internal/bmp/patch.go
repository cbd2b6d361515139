package bmp

import (
	"bytes"
	"fmt"
)

// PatchRequest asks for Value to be stored in Field.
type PatchRequest struct {
	Field Field
	Value int64
}

// Write records one committed field update.
type Write struct {
	Field  Field
	Value  int64
	Before []byte
	After  []byte
}

// Changed reports whether the write altered the stored bytes.
func (w Write) Changed() bool {
	return !bytes.Equal(w.Before, w.After)
}

// Observer sees every write before it reaches the resource. Returning an error
// aborts the write.
type Observer func(w Write) error

// Patcher writes header fields directly into a Resource.
type Patcher struct {
	r       Resource
	observe Observer
	commit  func(w Write)
}

// NewPatcher returns a Patcher for r. observe may be nil.
func NewPatcher(r Resource, observe Observer) *Patcher {
	return &Patcher{r: r, observe: observe}
}

// OnCommit registers fn to run after each write has reached the resource.
func (p *Patcher) OnCommit(fn func(w Write)) {
	p.commit = fn
}

// Apply performs req. Writing the header size also rewrites the data offset
// (see SetHeaderSize); every other field is an independent write.
func (p *Patcher) Apply(req PatchRequest) ([]Write, error) {
	if req.Field.Offset == FieldHeaderSize.Offset && req.Field.Width == FieldHeaderSize.Width {
		return p.SetHeaderSize(req.Value)
	}
	w, err := p.write(req.Field, req.Value)
	if err != nil {
		return nil, err
	}
	return []Write{w}, nil
}

// SetHeaderSize stores size at 0x0E and size-4 as the data offset. The offset
// ignores any color table between header and pixels.
func (p *Patcher) SetHeaderSize(size int64) ([]Write, error) {
	if size < 4 {
		return nil, fmt.Errorf("%w: header size %d leaves no room for the data offset", ErrValueRange, size)
	}
	return p.writeCoupled(size, size-4)
}

// CorrectHeaderSize replaces an invalid header size with 40 and sets the data
// offset to 36.
func (p *Patcher) CorrectHeaderSize() ([]Write, error) {
	return p.writeCoupled(RecommendedHdrSize, RecommendedDataOffset)
}

// FixFileSize stores the true resource length in the file size field.
func (p *Patcher) FixFileSize() ([]Write, error) {
	size, err := p.r.Size()
	if err != nil {
		return nil, fmt.Errorf("stat resource: %w", err)
	}
	w, err := p.write(FieldFileSize, size)
	if err != nil {
		return nil, err
	}
	return []Write{w}, nil
}

func (p *Patcher) writeCoupled(size, offset int64) ([]Write, error) {
	if err := CheckRange(FieldHeaderSize, size); err != nil {
		return nil, err
	}
	if err := CheckRange(FieldDataOffset, offset); err != nil {
		return nil, err
	}
	first, err := p.write(FieldHeaderSize, size)
	if err != nil {
		return nil, err
	}
	second, err := p.write(FieldDataOffset, offset)
	if err != nil {
		return []Write{first}, err
	}
	return []Write{first, second}, nil
}

func (p *Patcher) write(fd Field, value int64) (Write, error) {
	data, err := Encode(fd, value)
	if err != nil {
		return Write{}, err
	}
	before, err := ReadBytes(p.r, fd.Offset, fd.Width)
	if err != nil {
		return Write{}, err
	}
	w := Write{Field: fd, Value: value, Before: before, After: data}
	if p.observe != nil {
		if err := p.observe(w); err != nil {
			return Write{}, fmt.Errorf("record write of %s: %w", fd.Name, err)
		}
	}
	n, err := p.r.WriteAt(data, fd.Offset)
	if err != nil {
		return Write{}, fmt.Errorf("write %s at 0x%X: %w", fd.Name, fd.Offset, err)
	}
	if n != len(data) {
		return Write{}, fmt.Errorf("write %s at 0x%X: %w", fd.Name, fd.Offset, ErrShortWrite)
	}
	if p.commit != nil {
		p.commit(w)
	}
	return w, nil
}
