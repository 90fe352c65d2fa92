package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_NestsGroupsAfterAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil)).
		With("run", "abc").
		WithGroup("gym").
		With("generation", 3)

	log.Info("Generation complete", "best", 4.5, slog.Group("board", "w", 10, "h", 8), "err", errors.New("boom"))

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if doc["msg"] != "Generation complete" || doc["level"] != "INFO" {
		t.Fatalf("header wrong: %v", doc)
	}
	if doc["run"] != "abc" {
		t.Fatalf("attr added before the group should stay at the root: %v", doc)
	}
	gym, ok := doc["gym"].(map[string]any)
	if !ok {
		t.Fatalf("missing gym group: %v", doc)
	}
	if gym["generation"] != float64(3) || gym["best"] != 4.5 || gym["err"] != "boom" {
		t.Fatalf("gym group=%v", gym)
	}
	board, ok := gym["board"].(map[string]any)
	if !ok || board["w"] != float64(10) {
		t.Fatalf("board group=%v", gym["board"])
	}
	if !strings.Contains(buf.String(), "\n  \"") {
		t.Fatalf("output not indented:\n%s", buf.String())
	}
}

func TestPrettyHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn not logged")
	}
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"", FormatText, FormatJSON, FormatPretty} {
		var buf bytes.Buffer
		log, err := New(&buf, Options{Format: format})
		if err != nil {
			t.Fatalf("New(%q): %v", format, err)
		}
		log.Info("hello", "k", 1)
		if !strings.Contains(buf.String(), "hello") {
			t.Fatalf("format %q wrote %q", format, buf.String())
		}
	}
	if _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want=%v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for bad level")
	}
}
