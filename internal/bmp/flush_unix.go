//go:build linux

package bmp

import (
	"os"

	"golang.org/x/sys/unix"
)

// flush pushes written header bytes to disk. fdatasync is enough since the
// file length never changes.
func flush(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
