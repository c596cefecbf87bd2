package monitor

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"

	"github.com/logshell/logshell/internal/shell/storage"
)

type fakeStore struct {
	stats []storage.UsageStat
	err   error
}

func (f *fakeStore) UsageMetrics(context.Context) ([]storage.UsageStat, error) {
	return f.stats, f.err
}

func TestCollect(t *testing.T) {
	store := &fakeStore{stats: []storage.UsageStat{
		{UserID: "u1", Day: "2026-08-20", Count: 4, AvgSeconds: 1.5},
	}}

	stats, err := Collect(context.Background(), store)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(stats) != 1 || stats[0].UserID != "u1" {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCollectError(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("db closed")}

	if _, err := Collect(context.Background(), store); err == nil {
		t.Fatal("expected error")
	}
}

func TestWrite(t *testing.T) {
	var buf strings.Builder
	stats := []storage.UsageStat{
		{UserID: "u1", Day: "2026-08-20", Count: 4, AvgSeconds: 1.5},
		{UserID: "u2", Day: "2026-08-21", Count: 1, AvgSeconds: 0.25},
	}

	if err := Write(&buf, stats); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := "2026-08-20 user=u1 commands=4 avg_s=1.500\n" +
		"2026-08-21 user=u2 commands=1 avg_s=0.250\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriteCSVWithHeader(t *testing.T) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	stats := []storage.UsageStat{
		{UserID: "u1", Day: "2026-08-20", Count: 4, AvgSeconds: 1.5},
	}

	if err := WriteCSV(w, stats, true); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	want := "user_id,day,command_count,avg_seconds\nu1,2026-08-20,4,1.500\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriteCSVAppendWithoutHeader(t *testing.T) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	if err := WriteCSV(w, []storage.UsageStat{
		{UserID: "u2", Day: "2026-08-21", Count: 2, AvgSeconds: 3},
	}, false); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	if strings.Contains(buf.String(), "user_id") {
		t.Fatalf("header emitted on append: %q", buf.String())
	}
	if buf.String() != "u2,2026-08-21,2,3.000\n" {
		t.Fatalf("output = %q", buf.String())
	}
}
