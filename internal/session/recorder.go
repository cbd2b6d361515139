package session

import (
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"example.com/bmppatch/internal/bmp"
	"example.com/bmppatch/internal/common"
)

// Recorder is the write observer shared by the interactive session and the
// one-shot commands. Before a write it backs the file up once and appends an
// audit entry; after the write lands it counts and echoes it.
type Recorder struct {
	path         string
	audit        *common.PatchLog
	backupSuffix string
	out          io.Writer

	origin   string
	backedUp bool
	writes   int
}

// NewRecorder returns a Recorder for path. A nil audit log disables auditing
// and an empty suffix disables the backup. out may be nil.
func NewRecorder(path string, audit *common.PatchLog, backupSuffix string, out io.Writer) *Recorder {
	if out == nil {
		out = io.Discard
	}
	return &Recorder{path: path, audit: audit, backupSuffix: backupSuffix, out: out}
}

// SetOrigin tags subsequent audit entries with the rule or command that caused
// them.
func (r *Recorder) SetOrigin(origin string) { r.origin = origin }

// Patcher returns a Patcher for res that reports to r.
func (r *Recorder) Patcher(res bmp.Resource) *bmp.Patcher {
	p := bmp.NewPatcher(res, r.Observe)
	p.OnCommit(r.Committed)
	return p
}

// Writes returns the number of writes committed so far.
func (r *Recorder) Writes() int { return r.writes }

// auditFile is the absolute path recorded in audit entries so undo can match
// them from any working directory.
func (r *Recorder) auditFile() string {
	if abs, err := filepath.Abs(r.path); err == nil {
		return abs
	}
	return r.path
}

// Observe implements bmp.Observer.
func (r *Recorder) Observe(w bmp.Write) error {
	if r.backupSuffix != "" && !r.backedUp {
		dst, err := common.BackupOnce(r.path, r.backupSuffix)
		if err != nil {
			return err
		}
		r.backedUp = true
		fmt.Fprintf(r.out, "Backup kept at %s\n", dst)
		common.Logf("backup of %s at %s", r.path, dst)
	}
	if r.audit != nil {
		entry := common.PatchEntry{
			File:      r.auditFile(),
			Field:     w.Field.Name,
			RuleID:    r.origin,
			Offset:    w.Field.Offset,
			Value:     w.Value,
			BeforeHex: hex.EncodeToString(w.Before),
			AfterHex:  hex.EncodeToString(w.After),
		}
		if err := r.audit.Append(entry); err != nil {
			return fmt.Errorf("audit %s: %w", r.audit.Path(), err)
		}
	}
	return nil
}

// Committed counts and echoes a write that reached the file.
func (r *Recorder) Committed(w bmp.Write) {
	r.writes++
	fmt.Fprintf(r.out, "Writing %d to %s at 0x%02X\n", w.Value, w.Field.Name, w.Field.Offset)
	common.Logf("%s: %s=%d at 0x%02X (%x -> %x)", r.path, w.Field.Name, w.Value, w.Field.Offset, w.Before, w.After)
}
