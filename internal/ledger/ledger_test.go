package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_RecordAndSeen(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()

	seen, err := l.Seen(ctx, "1067983", "0000950123-24-008740")
	if err != nil || seen {
		t.Fatalf("expected unseen filing, got %v %v", seen, err)
	}
	e := Entry{
		CIK:       "1067983",
		Accession: "0000950123-24-008740",
		RunID:     "run-1",
		FormType:  "13F-HR",
		Path:      "/tmp/form13fInfoTable.tsv",
		Rows:      3,
		Columns:   11,
		SHA256:    "abc",
		WrittenAt: time.Date(2024, 8, 14, 10, 0, 0, 0, time.UTC),
	}
	if err := l.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}
	seen, err = l.Seen(ctx, e.CIK, e.Accession)
	if err != nil || !seen {
		t.Fatalf("expected seen filing, got %v %v", seen, err)
	}
	got, err := l.Get(ctx, e.CIK, e.Accession)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Path != e.Path || got.Rows != 3 || got.Columns != 11 || got.RunID != "run-1" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if !got.WrittenAt.Equal(e.WrittenAt) {
		t.Fatalf("written_at = %v, want %v", got.WrittenAt, e.WrittenAt)
	}
}

func TestLedger_RecordReplaces(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	e := Entry{CIK: "1", Accession: "a", RunID: "r1", Path: "p1", Rows: 1, Columns: 1, SHA256: "x"}
	if err := l.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}
	e.RunID, e.Path = "r2", "p2"
	if err := l.Record(ctx, e); err != nil {
		t.Fatalf("record again: %v", err)
	}
	got, err := l.Get(ctx, "1", "a")
	if err != nil || got.Path != "p2" || got.RunID != "r2" {
		t.Fatalf("expected replaced row, got %+v %v", got, err)
	}
	if old, _ := l.ByRun(ctx, "r1"); len(old) != 0 {
		t.Fatalf("expected no rows left for r1, got %d", len(old))
	}
}

func TestLedger_ByRun(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	for _, acc := range []string{"b", "a", "c"} {
		if err := l.Record(ctx, Entry{CIK: "1", Accession: acc, RunID: "r", Path: acc, SHA256: "x"}); err != nil {
			t.Fatalf("record %s: %v", acc, err)
		}
	}
	if err := l.Record(ctx, Entry{CIK: "1", Accession: "z", RunID: "other", Path: "z", SHA256: "x"}); err != nil {
		t.Fatalf("record z: %v", err)
	}
	got, err := l.ByRun(ctx, "r")
	if err != nil {
		t.Fatalf("by run: %v", err)
	}
	if len(got) != 3 || got[0].Accession != "a" || got[2].Accession != "c" {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestLedger_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	l, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Record(ctx, Entry{CIK: "1", Accession: "a", RunID: "r", Path: "p", SHA256: "x"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	l2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if seen, err := l2.Seen(ctx, "1", "a"); err != nil || !seen {
		t.Fatalf("expected entry after reopen, got %v %v", seen, err)
	}
}

func TestLedger_Closed(t *testing.T) {
	var l *Ledger
	if _, err := l.Seen(context.Background(), "1", "a"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}
