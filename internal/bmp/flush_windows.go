//go:build windows

package bmp

import (
	"os"

	"golang.org/x/sys/windows"
)

func flush(f *os.File) error {
	return windows.FlushFileBuffers(windows.Handle(f.Fd()))
}
