package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dakeena/living-chronicle/internal/config"
	"github.com/dakeena/living-chronicle/internal/persistence"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "chronicle.db")
	cfg.Seed = 12345
	return cfg
}

func TestRunChronicle(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	if err := runChronicle(context.Background(), &out, cfg, runOptions{days: 30, fresh: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, want := range []string{"=== The Living Chronicle ===", "Seed 12345", "3 factions", "=== Day 30"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunResumes(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	if err := runChronicle(ctx, &bytes.Buffer{}, cfg, runOptions{days: 10, quiet: true}); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runChronicle(ctx, &out, cfg, runOptions{days: 5, quiet: true}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "=== Day 15") {
		t.Errorf("second run did not resume:\n%s", out.String())
	}
}

func TestRunUntilInterrupted(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if err := runChronicle(ctx, &out, cfg, runOptions{fresh: true, quiet: true}); err != nil {
		t.Fatalf("interrupted run should exit cleanly: %v", err)
	}
	if !strings.Contains(out.String(), "Simulating indefinitely") {
		t.Errorf("output = %q", out.String())
	}

	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ws, err := db.LoadWorldState(context.Background())
	if err != nil || ws == nil || ws.CurrentDay == 0 {
		t.Fatalf("no days persisted before interrupt: %+v, %v", ws, err)
	}
	if !strings.Contains(out.String(), fmt.Sprintf("=== Day %s,", humanize.Comma(int64(ws.CurrentDay)))) {
		t.Errorf("summary does not match persisted day %d:\n%s", ws.CurrentDay, out.String())
	}
}

func TestPrintStatus(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var out bytes.Buffer
	if err := printStatus(ctx, &out, db); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No world") {
		t.Errorf("empty db status = %q", out.String())
	}

	if err := runChronicle(ctx, &bytes.Buffer{}, cfg, runOptions{days: 3, quiet: true}); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := printStatus(ctx, &out, db); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Day:       3", "Seed:      12345", "Factions:  3", "29 living of 29"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status missing %q:\n%s", want, out.String())
		}
	}
}

func TestStatusCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "flag.db")
	var out bytes.Buffer

	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"status", "--db", dbPath, "--seed", "7"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No world") {
		t.Errorf("status on empty db = %q", out.String())
	}
}

func TestRunRejectsNegativeDays(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--db", filepath.Join(t.TempDir(), "x.db"), "--days", "-1"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("negative --days accepted")
	}
}
