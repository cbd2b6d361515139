package common

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PatchEntry captures a single in-place modification to a bitmap header.
type PatchEntry struct {
	File      string    `json:"file,omitempty"`
	Field     string    `json:"field"`
	RuleID    string    `json:"ruleId,omitempty"`
	Offset    int64     `json:"offset"`
	Value     int64     `json:"value"`
	BeforeHex string    `json:"beforeHex"`
	AfterHex  string    `json:"afterHex"`
	Ts        time.Time `json:"ts"`
}

// BeforeBytes decodes the bytes present before the write.
func (p PatchEntry) BeforeBytes() ([]byte, error) {
	if strings.TrimSpace(p.BeforeHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.BeforeHex)
}

// AfterBytes decodes the bytes written.
func (p PatchEntry) AfterBytes() ([]byte, error) {
	if strings.TrimSpace(p.AfterHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.AfterHex)
}

// PatchLog provides append-only access to a JSONL audit log.
type PatchLog struct {
	path string
	mu   sync.Mutex
}

// NewPatchLog returns a PatchLog that writes to the provided path.
func NewPatchLog(path string) *PatchLog {
	return &PatchLog{path: path}
}

// Path returns the backing file path for the log.
func (p *PatchLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Append writes a new entry to the audit log. Entries are serialized as
// JSON objects, one per line, and synced before Append returns so the record
// exists before the header bytes change.
func (p *PatchLog) Append(entry PatchEntry) error {
	if p == nil {
		return errors.New("nil patch log")
	}
	if entry.Field == "" {
		return errors.New("patch entry missing field")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadPatchLog loads every entry from the supplied JSONL file.
func ReadPatchLog(path string) ([]PatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []PatchEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry PatchEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode patch entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// EntriesFor returns the entries recorded for path, in log order, and the
// number of entries that belong to other files. Entries without a file name
// are never matched.
func EntriesFor(entries []PatchEntry, path string) ([]PatchEntry, int) {
	want := absPath(path)
	var kept []PatchEntry
	foreign := 0
	for _, e := range entries {
		if e.File != "" && (absPath(e.File) == want || SameFile(e.File, path)) {
			kept = append(kept, e)
			continue
		}
		foreign++
	}
	return kept, foreign
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// RevertResult summarizes a Revert run.
type RevertResult struct {
	Applied    int
	Skipped    int
	Mismatches int
}

// Revert restores the before bytes of entries in reverse order. An entry whose
// after bytes no longer match the file counts as a mismatch; its before bytes
// are written regardless.
func Revert(rw interface {
	io.ReaderAt
	io.WriterAt
}, entries []PatchEntry) (RevertResult, error) {
	var res RevertResult
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		before, err := entry.BeforeBytes()
		if err != nil {
			Logf("skip entry %d: decode beforeHex failed: %v", i, err)
			res.Skipped++
			continue
		}
		after, err := entry.AfterBytes()
		if err != nil {
			Logf("skip entry %d: decode afterHex failed: %v", i, err)
			res.Skipped++
			continue
		}
		if entry.Offset < 0 {
			Logf("skip entry %d: invalid offset %d", i, entry.Offset)
			res.Skipped++
			continue
		}
		mismatch := len(after) != len(before)
		if len(after) > 0 {
			buf := make([]byte, len(after))
			if _, err := rw.ReadAt(buf, entry.Offset); err != nil || !bytes.Equal(buf, after) {
				mismatch = true
			}
		}
		if len(before) > 0 {
			if _, err := rw.WriteAt(before, entry.Offset); err != nil {
				return res, fmt.Errorf("restore %s at 0x%X: %w", entry.Field, entry.Offset, err)
			}
		}
		if mismatch {
			res.Mismatches++
		}
		res.Applied++
	}
	return res, nil
}
