package session

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/common"
	"example.com/bmppatch/internal/samples"
)

// readOnlyResource serves header bytes but fails every write.
type readOnlyResource struct {
	data []byte
	err  error
}

func (r *readOnlyResource) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, r.data[off:]), nil
}

func (r *readOnlyResource) WriteAt([]byte, int64) (int, error) { return 0, r.err }

func (r *readOnlyResource) Size() (int64, error) { return int64(len(r.data)), nil }

func TestRecorderCountsOnlyCommittedWrites(t *testing.T) {
	readOnly := errors.New("read-only file system")
	var out bytes.Buffer
	rec := NewRecorder("image.bmp", nil, "", &out)
	p := rec.Patcher(&readOnlyResource{data: samples.MinimalInfo(), err: readOnly})
	_, err := p.Apply(bmp.PatchRequest{Field: bmp.MustField(bmp.VariantInfo, "width"), Value: 5})
	if !errors.Is(err, readOnly) {
		t.Fatalf("expected write error, got %v", err)
	}
	if rec.Writes() != 0 {
		t.Fatalf("failed write was counted: %d", rec.Writes())
	}
	if strings.Contains(out.String(), "Writing") {
		t.Fatalf("failed write was echoed:\n%s", out.String())
	}
}

func TestRecorderAuditsAbsolutePath(t *testing.T) {
	path := writeSample(t, samples.MinimalInfo())
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	f, err := bmp.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rec := NewRecorder(path, common.NewPatchLog(auditPath), "", nil)
	if _, err := rec.Patcher(f).SetHeaderSize(108); err != nil {
		t.Fatalf("SetHeaderSize: %v", err)
	}
	if rec.Writes() != 2 {
		t.Fatalf("writes = %d", rec.Writes())
	}
	entries, err := common.ReadPatchLog(auditPath)
	if err != nil {
		t.Fatalf("ReadPatchLog: %v", err)
	}
	if len(entries) != 2 || !filepath.IsAbs(entries[0].File) {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
	if kept, foreign := common.EntriesFor(entries, path); len(kept) != 2 || foreign != 0 {
		t.Fatalf("EntriesFor = %d kept, %d foreign", len(kept), foreign)
	}
}
