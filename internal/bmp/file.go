package bmp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrResourceNotFound = errors.New("file doesn't exist or it is not a regular file")
	ErrValueRange       = errors.New("value does not fit field")
	ErrShortWrite       = errors.New("short write")
)

// Resource is the random-access byte stream the core reads and patches.
type Resource interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
}

// File is a Resource backed by a file opened for reading and writing.
type File struct {
	f    *os.File
	path string
}

// Open opens path for simultaneous binary read and write. Missing paths and
// anything that is not a regular file yield ErrResourceNotFound.
func Open(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: path}, nil
}

func (f *File) Path() string { return f.path }

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

// WriteAt writes p at off and flushes it to stable storage before returning.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, ErrShortWrite
	}
	return n, flush(f.f)
}

// Size reports the current length of the file.
func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *File) Close() error {
	return f.f.Close()
}

// ReadBytes reads exactly n bytes at off. Bytes past the end of the resource
// read as zero, matching a header that is shorter than the probed layout.
func ReadBytes(r io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %d bytes at 0x%X: %w", n, off, err)
	}
	return buf, nil
}

// ReadField reads the value described by fd, sign-extending signed fields.
func ReadField(r io.ReaderAt, fd Field) (int64, error) {
	buf, err := ReadBytes(r, fd.Offset, fd.Width)
	if err != nil {
		return 0, err
	}
	return decode(buf, fd), nil
}

// ReadUint16 reads a little-endian uint16 at off.
func ReadUint16(r io.ReaderAt, off int64) (uint16, error) {
	buf, err := ReadBytes(r, off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// ReadUint32 reads a little-endian uint32 at off.
func ReadUint32(r io.ReaderAt, off int64) (uint32, error) {
	buf, err := ReadBytes(r, off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func decode(buf []byte, fd Field) int64 {
	switch fd.Width {
	case 1:
		if fd.Signed {
			return int64(int8(buf[0]))
		}
		return int64(buf[0])
	case 2:
		v := binary.LittleEndian.Uint16(buf)
		if fd.Signed {
			return int64(int16(v))
		}
		return int64(v)
	default:
		v := binary.LittleEndian.Uint32(buf)
		if fd.Signed {
			return int64(int32(v))
		}
		return int64(v)
	}
}

// Encode returns the little-endian bytes of value for fd.
func Encode(fd Field, value int64) ([]byte, error) {
	if err := CheckRange(fd, value); err != nil {
		return nil, err
	}
	buf := make([]byte, fd.Width)
	switch fd.Width {
	case 1:
		buf[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(value))
	default:
		return nil, fmt.Errorf("unsupported field width %d", fd.Width)
	}
	return buf, nil
}

// CheckRange reports whether value is representable by fd.
func CheckRange(fd Field, value int64) error {
	lo, hi := Bounds(fd)
	if value < lo || value > hi {
		return fmt.Errorf("%w: %s accepts %d..%d, got %d", ErrValueRange, fd.Name, lo, hi, value)
	}
	return nil
}

// Bounds returns the inclusive value range of fd.
func Bounds(fd Field) (int64, int64) {
	switch {
	case fd.Width == 1 && fd.Signed:
		return math.MinInt8, math.MaxInt8
	case fd.Width == 1:
		return 0, math.MaxUint8
	case fd.Width == 2 && fd.Signed:
		return math.MinInt16, math.MaxInt16
	case fd.Width == 2:
		return 0, math.MaxUint16
	case fd.Signed:
		return math.MinInt32, math.MaxInt32
	default:
		return 0, math.MaxUint32
	}
}
