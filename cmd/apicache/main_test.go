package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/electwix/apicache/internal/history"
	"github.com/electwix/apicache/internal/registry"
)

const warmTrace = `# warm entity 42 then read it back
set entity 42 "payload"
get entity 42
get entity 43
set search "Blue Whale" r ttl 1m
advance 2m
cleanup fraction 1.0
`

func TestRunReplaysTrace(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "warm.trace", warmTrace)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	exitCode := run(context.Background(), []string{"--trace", tracePath, "--report"}, stdout, stderr)
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%q", exitCode, stderr.String())
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	wantPrefix := []string{
		"set entity 42 ttl=12h0m0s",
		"get entity 42 -> hit",
		"get entity 43 -> miss",
		"set search Blue Whale ttl=1m0s",
		"advance 2m0s",
		"cleanup -> removed 1",
	}
	if len(lines) != len(wantPrefix)+1 {
		t.Fatalf("stdout has %d lines, want %d:\n%s", len(lines), len(wantPrefix)+1, stdout.String())
	}
	for i, want := range wantPrefix {
		if lines[i] != want {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}

	var rep registry.Report
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rep); err != nil {
		t.Fatalf("report line: %v", err)
	}
	if got := rep.Caches[registry.Entity]; got.Hits != 1 || got.Misses != 1 || got.Size != 1 {
		t.Fatalf("entity stats = %+v", got)
	}
	if got := rep.Caches[registry.Search].Size; got != 0 {
		t.Fatalf("search size = %d, want 0", got)
	}
	if !strings.Contains(stderr.String(), "replay finished") {
		t.Fatalf("stderr missing summary log: %q", stderr.String())
	}
}

func TestRunRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "stats.db")
	configPath := writeFile(t, dir, "apicache.toml", `
[caches.entity]
ttl = "1h"

[stats]
sink = "sqlite"
dsn = "`+filepath.ToSlash(dbPath)+`"
`)
	tracePath := writeFile(t, dir, "warm.trace", warmTrace)
	stderr := &bytes.Buffer{}

	exitCode := run(context.Background(), []string{"-c", configPath, tracePath}, &bytes.Buffer{}, stderr)
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%q", exitCode, stderr.String())
	}

	ctx := context.Background()
	rec, err := history.Open(ctx, history.Sink{Driver: history.DriverSQLite, DSN: dbPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rec.Close()

	rows, err := rec.Recent(ctx, registry.Entity, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 || rows[0].Stats.Hits != 1 {
		t.Fatalf("entity rows = %+v", rows)
	}
}

func TestRunTraceParseError(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeFile(t, dir, "bad.trace", "get entity 1\nget users 2\n")
	stderr := &bytes.Buffer{}

	exitCode := run(context.Background(), []string{"-t", tracePath}, &bytes.Buffer{}, stderr)
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1", exitCode)
	}
	out := stderr.String()
	if !strings.HasPrefix(out, tracePath+":2:") || !strings.Contains(out, "[error]") {
		t.Fatalf("stderr = %q, want positioned error", out)
	}
}

func TestRunConfigWarningsAndStrict(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "apicache.toml", "[cleanup]\njitter = \"1s\"\n")
	tracePath := writeFile(t, dir, "warm.trace", "stats\n")

	stderr := &bytes.Buffer{}
	if code := run(context.Background(), []string{"-c", configPath, tracePath}, &bytes.Buffer{}, stderr); code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "cleanup.jitter [warning]") {
		t.Fatalf("stderr missing warning: %q", stderr.String())
	}

	stderr.Reset()
	if code := run(context.Background(), []string{"-c", configPath, "--strict-config", tracePath}, &bytes.Buffer{}, stderr); code != 1 {
		t.Fatalf("strict exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unknown configuration keys") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunSinkFailure(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "apicache.toml", `
[stats]
sink = "sqlite"
dsn = "`+filepath.ToSlash(filepath.Join(dir, "missing", "stats.db"))+`"
`)
	tracePath := writeFile(t, dir, "warm.trace", "stats\n")
	stderr := &bytes.Buffer{}

	if code := run(context.Background(), []string{"-c", configPath, tracePath}, &bytes.Buffer{}, stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2; stderr=%q", code, stderr.String())
	}
}

func TestRunUsage(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	if code := run(context.Background(), []string{"-h"}, stdout, stderr); code != 0 {
		t.Fatalf("help exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "Usage of apicache") {
		t.Fatalf("stdout = %q, want usage", stdout.String())
	}

	if code := run(context.Background(), nil, stdout, stderr); code != 1 {
		t.Fatalf("missing trace exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "a trace file is required") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
