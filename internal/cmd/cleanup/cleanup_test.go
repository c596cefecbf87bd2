package cleanup

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	t.Setenv("LOGSHELL_DB_PATH", "/var/lib/logshell/shell.db")

	cfg, err := ParseConfig(fs, []string{"-days", "30", "-once"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/var/lib/logshell/shell.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.RetentionDays != 30 {
		t.Fatalf("retention days = %d, want 30", cfg.RetentionDays)
	}
	if !cfg.Once {
		t.Fatal("once not set")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.RetentionDays != 90 {
		t.Fatalf("retention days = %d, want 90", cfg.RetentionDays)
	}
	if cfg.Interval != time.Hour {
		t.Fatalf("interval = %v, want 1h", cfg.Interval)
	}
	if cfg.Once {
		t.Fatal("once defaulted true")
	}
}
