package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("station started", logging.String(logging.FieldExhibitorID, "EX1"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "uukscan.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", content, err)
	}
	if record["msg"] != "station started" {
		t.Fatalf("unexpected msg %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("unexpected level %v", record["level"])
	}
	if record[logging.FieldExhibitorID] != "EX1" {
		t.Fatalf("expected exhibitor field, got %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerLiftsComponentAndQueue(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithQueue(services.WithEventID(context.Background(), "evt-1"), "scan")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "submit")).Info("event queued", logging.Int("size", 2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "submit [scan] event queued") {
		t.Fatalf("expected component and queue prefix, got %q", line)
	}
	if !strings.Contains(line, "event_id=evt-1") || !strings.Contains(line, "size=2") {
		t.Fatalf("expected key/value pairs, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be lifted out of key/value pairs, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "persistence degraded", "queue_write_failed",
		logging.String(logging.FieldImpact, "event held in memory only"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldEventType] != "queue_write_failed" {
		t.Fatalf("unexpected event_type %v", record[logging.FieldEventType])
	}
	if record[logging.FieldImpact] != "event held in memory only" {
		t.Fatalf("explicit impact should be kept, got %v", record[logging.FieldImpact])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error_hint")
	}
}

func TestTeeHandlerDuplicatesRecords(t *testing.T) {
	var first, second bytes.Buffer
	h1 := slog.NewJSONHandler(&first, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewJSONHandler(&second, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(logging.TeeHandler(nil, h1, h2)).With(logging.String("station", "A"))
	logger.Info("info only")
	logger.Warn("both")

	if got := strings.Count(first.String(), "\n"); got != 2 {
		t.Fatalf("expected 2 lines in first handler, got %d", got)
	}
	if got := strings.Count(second.String(), "\n"); got != 1 {
		t.Fatalf("expected 1 line in second handler, got %d", got)
	}
	if !strings.Contains(second.String(), `"station":"A"`) {
		t.Fatalf("expected With attrs to propagate, got %q", second.String())
	}
}

func TestTeeHandlerCollapses(t *testing.T) {
	if _, ok := logging.TeeHandler(nil, nil).(logging.NoopHandler); !ok {
		t.Fatal("expected NoopHandler when all handlers are nil")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if logging.TeeHandler(nil, inner) != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
}

func TestJSONLoggerRedactsSecrets(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("auth attempt",
		slog.String("passcode", "4321"),
		slog.Group("webhook", slog.String("passcode_hash", "abc123")),
		logging.String(logging.FieldExhibitorID, "EX1"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "4321") || strings.Contains(string(content), "abc123") {
		t.Fatalf("secret leaked into log: %q", content)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", content, err)
	}
	if record["passcode"] != "[redacted]" || record[logging.FieldExhibitorID] != "EX1" {
		t.Fatalf("unexpected record %v", record)
	}
	ts, _ := record["ts"].(string)
	if !strings.HasSuffix(ts, "Z") || !strings.Contains(ts, ".") {
		t.Fatalf("expected UTC millisecond timestamp, got %q", ts)
	}
}
