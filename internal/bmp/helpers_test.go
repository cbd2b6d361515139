package bmp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openSample(t *testing.T, data []byte) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bmp")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	f, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}
