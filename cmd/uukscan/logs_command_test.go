package main

import (
	"os"
	"strings"
	"testing"
)

func TestLogsFiltersByEvent(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	content := `{"msg":"consent submitted","event_id":"e1","queue":"scan"}` + "\n" +
		`{"msg":"session completed","event_id":"e2","queue":"session"}` + "\n"
	if err := os.WriteFile(env.cfg.LogFilePath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, env, "", "logs", "--event", "e2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, `"e1"`) {
		t.Fatalf("filter leaked e1: %q", out)
	}
	requireContains(t, out, "session completed")
}
