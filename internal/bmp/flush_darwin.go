//go:build darwin

package bmp

import (
	"os"

	"golang.org/x/sys/unix"
)

// flush uses F_FULLFSYNC, falling back to fsync where the filesystem rejects it.
func flush(f *os.File) error {
	fd := int(f.Fd())
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0); err == nil {
		return nil
	}
	return unix.Fsync(fd)
}
