package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// FilingStatus is the outcome of one filing in a run.
type FilingStatus string

const (
	StatusWritten FilingStatus = "written"
	StatusSkipped FilingStatus = "skipped"
	StatusFailed  FilingStatus = "failed"
)

// FilingResult is the manifest record of a single filing.
type FilingResult struct {
	Accession   string       `json:"accession"`
	FilingDate  string       `json:"filing_date,omitempty"`
	FormType    string       `json:"form_type,omitempty"`
	Status      FilingStatus `json:"status"`
	Document    string       `json:"document,omitempty"`
	URL         string       `json:"url,omitempty"`
	Output      string       `json:"output,omitempty"`
	Rows        int          `json:"rows"`
	Columns     int          `json:"columns"`
	Mismatches  int          `json:"mismatched_rows,omitempty"`
	UnsafeCells int          `json:"unsafe_cells,omitempty"`
	SHA256      string       `json:"sha256,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// RunManifest captures run details that aid auditing and reproducibility.
type RunManifest struct {
	RunID       string         `json:"run_id"`
	Version     string         `json:"version"`
	Identifier  string         `json:"identifier"`
	CIK         string         `json:"cik,omitempty"`
	CompanyName string         `json:"company_name,omitempty"`
	FormType    string         `json:"form_type"`
	LocateRule  string         `json:"locate_rule"`
	HTTPCache   bool           `json:"http_cache"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Filings     []FilingResult `json:"filings"`
}

// Counts tallies filings by status.
func (m RunManifest) Counts() (written, skipped, failed int) {
	for _, f := range m.Filings {
		switch f.Status {
		case StatusWritten:
			written++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return written, skipped, failed
}

// writeManifestJSON writes m next to its final path and renames it into place.
func writeManifestJSON(path string, m RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// fileSHA256 returns the lowercase hex SHA-256 of a file's bytes.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
