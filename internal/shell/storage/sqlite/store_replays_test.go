package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/logshell/logshell/internal/shell/storage"
)

func TestReplayResultsRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)

	results := []storage.ReplayResult{
		{ReplayID: "replay-1", Seq: 0, SourceCommandID: 10, Text: "ls", Output: "a.txt\n", ExitCode: 0, CreatedAt: now},
		{ReplayID: "replay-1", Seq: 1, SourceCommandID: 11, Text: "cat missing", Output: "", ExitCode: 1, CreatedAt: now},
		{ReplayID: "replay-2", Seq: 0, SourceCommandID: 10, Text: "ls", Output: "b.txt\n", ExitCode: 0, CreatedAt: now},
	}
	for _, r := range results {
		if err := store.RecordReplayResult(context.Background(), r); err != nil {
			t.Fatalf("record %s/%d: %v", r.ReplayID, r.Seq, err)
		}
	}

	got, err := store.ListReplayResults(context.Background(), "replay-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Seq != 0 || got[1].Seq != 1 {
		t.Fatalf("order = %d,%d", got[0].Seq, got[1].Seq)
	}
	if got[0].Output != "a.txt\n" || got[0].SourceCommandID != 10 {
		t.Fatalf("row 0 = %+v", got[0])
	}
	if got[1].ExitCode != 1 {
		t.Fatalf("row 1 exit = %d", got[1].ExitCode)
	}
	if !got[0].CreatedAt.Equal(now) {
		t.Fatalf("created at = %v", got[0].CreatedAt)
	}
}

func TestListReplayResultsEmpty(t *testing.T) {
	store := openTempStore(t)

	got, err := store.ListReplayResults(context.Background(), "nope")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestRecordReplayResultValidation(t *testing.T) {
	store := openTempStore(t)

	err := store.RecordReplayResult(context.Background(), storage.ReplayResult{Seq: 0})
	if err == nil {
		t.Fatal("expected error for missing replay id")
	}
}
