// Package ledger keeps a SQLite record of filings already converted to TSV so
// repeat runs can skip them.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotOpen is returned by operations on a closed or zero Ledger.
var ErrNotOpen = errors.New("ledger not open")

// Entry is one converted filing.
type Entry struct {
	CIK        string
	Accession  string
	RunID      string
	FormType   string
	FilingDate string
	Path       string
	Rows       int
	Columns    int
	SHA256     string
	WrittenAt  time.Time
}

// Ledger wraps the SQLite database.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger database at path and ensures the schema.
// Use ":memory:" for a throwaway ledger.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string { return l.path }

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Record stores e, replacing any earlier row for the same filing.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if l == nil || l.db == nil {
		return ErrNotOpen
	}
	if e.WrittenAt.IsZero() {
		e.WrittenAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO conversions (cik, accession, run_id, form_type, filing_date, path, row_count, col_count, sha256, written_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cik, accession) DO UPDATE SET
		   run_id = excluded.run_id,
		   form_type = excluded.form_type,
		   filing_date = excluded.filing_date,
		   path = excluded.path,
		   row_count = excluded.row_count,
		   col_count = excluded.col_count,
		   sha256 = excluded.sha256,
		   written_at = excluded.written_at`,
		e.CIK, e.Accession, e.RunID, e.FormType, e.FilingDate, e.Path, e.Rows, e.Columns, e.SHA256, e.WrittenAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s/%s: %w", e.CIK, e.Accession, err)
	}
	return nil
}

// Seen reports whether the filing has been recorded before.
func (l *Ledger) Seen(ctx context.Context, cik, accession string) (bool, error) {
	if l == nil || l.db == nil {
		return false, ErrNotOpen
	}
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversions WHERE cik = ? AND accession = ?`, cik, accession,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return n > 0, nil
}

// Get returns the recorded entry for a filing.
func (l *Ledger) Get(ctx context.Context, cik, accession string) (Entry, error) {
	if l == nil || l.db == nil {
		return Entry{}, ErrNotOpen
	}
	row := l.db.QueryRowContext(ctx,
		`SELECT cik, accession, run_id, form_type, filing_date, path, row_count, col_count, sha256, written_at
		 FROM conversions WHERE cik = ? AND accession = ?`, cik, accession)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("filing not found: %s/%s", cik, accession)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get filing: %w", err)
	}
	return e, nil
}

// ByRun lists the filings recorded by one run in accession order.
func (l *Ledger) ByRun(ctx context.Context, runID string) ([]Entry, error) {
	if l == nil || l.db == nil {
		return nil, ErrNotOpen
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT cik, accession, run_id, form_type, filing_date, path, row_count, col_count, sha256, written_at
		 FROM conversions WHERE run_id = ? ORDER BY accession`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var writtenAt string
	if err := s.Scan(&e.CIK, &e.Accession, &e.RunID, &e.FormType, &e.FilingDate, &e.Path, &e.Rows, &e.Columns, &e.SHA256, &writtenAt); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, writtenAt)
	if err != nil {
		return Entry{}, fmt.Errorf("bad written_at %q: %w", writtenAt, err)
	}
	e.WrittenAt = t
	return e, nil
}
