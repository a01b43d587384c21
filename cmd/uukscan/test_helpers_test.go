package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("UUKSCAN_BACKEND_URL", "")

	configPath := filepath.Join(homeDir, ".config", "uukscan", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	flags := []string{"--config", env.configPath}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// withStore opens the queue database for seeding or inspection and closes it
// before returning so the CLI sees a quiet database.
func withStore(t *testing.T, cfg *config.Config, fn func(*queue.Store)) {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	defer store.Close()
	fn(store)
}

func seedLogin(t *testing.T, cfg *config.Config, exhibitorID, name string) {
	t.Helper()
	withStore(t, cfg, func(store *queue.Store) {
		err := store.SetSlots(context.Background(), map[string]string{
			queue.SlotVerifiedExhibitorID:   exhibitorID,
			queue.SlotVerifiedExhibitorName: name,
		})
		if err != nil {
			t.Fatalf("SetSlots: %v", err)
		}
	})
}

func seedScans(t *testing.T, cfg *config.Config, exhibitorID string, tickets ...string) {
	t.Helper()
	withStore(t, cfg, func(store *queue.Store) {
		q := testsupport.MustQueue(t, store, queue.NameScan)
		for _, ticket := range tickets {
			ev, err := events.NewScanEvent(events.ScanInput{
				TicketID:    ticket,
				ExhibitorID: exhibitorID,
				Consent:     true,
				Rating:      3,
				Notes:       "met at the stand",
				ScannedAt:   time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
			})
			if err != nil {
				t.Fatalf("NewScanEvent: %v", err)
			}
			payload, err := ev.Payload("test")
			if err != nil {
				t.Fatalf("Payload: %v", err)
			}
			if _, err := q.Enqueue(context.Background(), ev.ID(), payload); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
		}
	})
}

func queueItems(t *testing.T, cfg *config.Config, name queue.Name) []queue.Item {
	t.Helper()
	var items []queue.Item
	withStore(t, cfg, func(store *queue.Store) {
		items = testsupport.MustQueue(t, store, name).Items()
	})
	return items
}

// testRelay answers health checks, verifies every login and records
// delivered scan tickets.
type testRelay struct {
	mu      sync.Mutex
	tickets []string
}

func newTestRelay(t *testing.T) (*testRelay, *httptest.Server) {
	t.Helper()
	relay := &testRelay{}
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)
	return relay, srv
}

func (r *testRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch req.URL.Path {
	case "/health":
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case "/api/auth":
		_, _ = w.Write([]byte(`{"verified":true,"exhibitor_name":"Acme Ltd"}`))
	case "/api/scan":
		var p events.ScanPayload
		_ = json.NewDecoder(req.Body).Decode(&p)
		r.mu.Lock()
		r.tickets = append(r.tickets, p.TicketID)
		r.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

func (r *testRelay) delivered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tickets...)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
