//go:build !linux && !freebsd && !darwin && !windows

package bmp

import "os"

func flush(f *os.File) error {
	return f.Sync()
}
