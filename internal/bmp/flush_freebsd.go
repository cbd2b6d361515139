//go:build freebsd

package bmp

import (
	"os"

	"golang.org/x/sys/unix"
)

// flush falls back to fsync; FreeBSD has no fdatasync in x/sys/unix.
func flush(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
