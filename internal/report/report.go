package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"example.com/bmppatch/internal/rules"
)

// SaveAcceptanceJSON writes rep as indented JSON, creating the parent
// directory when needed.
func SaveAcceptanceJSON(rep rules.AcceptanceReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode acceptance: %w", err)
	}
	if dir := filepath.Dir(out); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(out, append(b, '\n'), 0o644)
}
