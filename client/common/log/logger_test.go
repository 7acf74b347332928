package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogger_MinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := &logger{filePath: noFilePath, format: logFormatText, minLevel: warnLevel, console: &buf}

	l.logf(infoLevel, "hidden %d", 1)
	l.logf(warnLevel, "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written below min level: %q", out)
	}
	if !strings.Contains(out, ":WARN:") || !strings.Contains(out, "shown 2") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := &logger{filePath: noFilePath, format: logFormatJSON, console: &buf}

	l.logf(errorLevel, "boom")

	var payload map[string]string
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if payload["level"] != "ERROR" {
		t.Errorf("level = %q, want ERROR", payload["level"])
	}
	if payload["message"] != "boom" {
		t.Errorf("message = %q, want boom", payload["message"])
	}
}

func TestLogger_RotatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.log")
	l := &logger{filePath: path, format: logFormatText, maxSizeBytes: 64}

	for i := 0; i < 5; i++ {
		l.logf(infoLevel, "line number %d with some padding", i)
	}
	if l.file != nil {
		_ = l.file.Close()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("expected rotated files, got %d entries", len(entries))
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]level{
		"":        debugLevel,
		"info":    infoLevel,
		"WARNING": warnLevel,
		"error":   errorLevel,
		"bogus":   debugLevel,
	}
	for raw, want := range tests {
		if got := parseLevel(raw); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestNextRotatedPath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	got, err := nextRotatedPath(filepath.Join(dir, "tgchat.log"), now)
	if err != nil {
		t.Fatalf("nextRotatedPath() error = %v", err)
	}
	want := filepath.Join(dir, "tgchat_20240301_100000_1.log")
	if got != want {
		t.Errorf("nextRotatedPath() = %q, want %q", got, want)
	}
}
