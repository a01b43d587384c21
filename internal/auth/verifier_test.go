package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/auth"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/testsupport"
)

type fakeConnectivity struct{ online atomic.Bool }

func (f *fakeConnectivity) Online() bool { return f.online.Load() }

func newConnectivity(online bool) *fakeConnectivity {
	c := &fakeConnectivity{}
	c.online.Store(online)
	return c
}

// relay answers /api/auth with a fixed status and body and counts calls.
func relay(t *testing.T, status int, body any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/auth" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["exhibitor_id"] == "" || req["passcode"] == "" {
			t.Errorf("request missing credentials: %v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newVerifier(t *testing.T, url string, online bool) (*auth.Verifier, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(url))
	store := testsupport.MustOpenStore(t, cfg)
	return auth.NewVerifier(cfg, store, newConnectivity(online)), store
}

func TestHashMatches(t *testing.T) {
	const digest = "8d969eef6ecad3c29a3a629280e686cf0c3f5d5a86aff3ca12020c923adc6c92"
	if got := auth.HashPasscode("123456"); got != digest {
		t.Fatalf("HashPasscode = %s", got)
	}
	cases := []struct {
		name     string
		passcode string
		expected string
		want     bool
	}{
		{"exact", "123456", digest, true},
		{"uppercase", "123456", "8D969EEF6ECAD3C29A3A629280E686CF0C3F5D5A86AFF3CA12020C923ADC6C92", true},
		{"padded", "123456", "  " + digest + "\n", true},
		{"wrong passcode", "654321", digest, false},
		{"empty digest", "123456", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := auth.HashMatches(tc.passcode, tc.expected); got != tc.want {
				t.Fatalf("HashMatches(%q, %q) = %v, want %v", tc.passcode, tc.expected, got, tc.want)
			}
		})
	}
}

func TestLoginOnlineCachesIdentity(t *testing.T) {
	srv, _ := relay(t, http.StatusOK, map[string]any{"verified": true, "exhibitor_name": "Acme Ltd"})
	v, store := newVerifier(t, srv.URL, true)
	ctx := context.Background()

	id, err := v.Login(ctx, " EX-1 ", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id.ExhibitorID != "EX-1" || id.ExhibitorName != "Acme Ltd" {
		t.Fatalf("identity = %+v", id)
	}
	if got, ok := v.ExhibitorID(ctx); !ok || got != "EX-1" {
		t.Fatalf("ExhibitorID = %q, %v", got, ok)
	}
	stored, ok, err := store.GetSlot(ctx, queue.SlotVerifiedExhibitorID)
	if err != nil || !ok || stored != "EX-1" {
		t.Fatalf("cached id = %q, %v, %v", stored, ok, err)
	}
}

func TestLoginUsesNameFallback(t *testing.T) {
	srv, _ := relay(t, http.StatusOK, map[string]any{"verified": true, "name": "Beta Co"})
	v, _ := newVerifier(t, srv.URL, true)

	id, err := v.Login(context.Background(), "EX-2", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id.DisplayName() != "Beta Co" {
		t.Fatalf("DisplayName = %q", id.DisplayName())
	}
}

func TestLoginComparesReturnedHash(t *testing.T) {
	srv, _ := relay(t, http.StatusOK, map[string]any{
		"hash": "8D969EEF6ECAD3C29A3A629280E686CF0C3F5D5A86AFF3CA12020C923ADC6C92",
	})
	v, _ := newVerifier(t, srv.URL, true)
	ctx := context.Background()

	if _, err := v.Login(ctx, "EX-3", "000000"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("wrong passcode err = %v", err)
	}
	if _, err := v.Login(ctx, "EX-3", "123456"); err != nil {
		t.Fatalf("correct passcode: %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, map[string]any{"error": "Invalid passcode"}, auth.ErrInvalidCredential},
		{"not verified", http.StatusOK, map[string]any{"verified": false}, auth.ErrInvalidCredential},
		{"relay failure", http.StatusInternalServerError, map[string]any{"error": "Server misconfiguration"}, services.ErrServerRejected},
		{"no verdict", http.StatusOK, map[string]any{}, services.ErrServerRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := relay(t, tc.status, tc.body)
			v, store := newVerifier(t, srv.URL, true)
			ctx := context.Background()

			if _, err := v.Login(ctx, "EX-4", "pw"); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if _, ok := v.ExhibitorID(ctx); ok {
				t.Fatal("rejected login left an active identity")
			}
			if _, ok, _ := store.GetSlot(ctx, queue.SlotVerifiedExhibitorID); ok {
				t.Fatal("rejected login cached an identity")
			}
		})
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	v, _ := newVerifier(t, "http://127.0.0.1:0", true)
	if _, err := v.Login(context.Background(), "EX-5", "  "); !errors.Is(err, auth.ErrMissingCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestOfflineLoginOnlyForVerifiedID(t *testing.T) {
	srv, calls := relay(t, http.StatusOK, map[string]any{"verified": true, "exhibitor_name": "Acme Ltd"})
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(srv.URL))
	store := testsupport.MustOpenStore(t, cfg)
	conn := newConnectivity(true)
	v := auth.NewVerifier(cfg, store, conn)
	ctx := context.Background()

	if _, err := v.Login(ctx, "EX-1", "secret"); err != nil {
		t.Fatalf("online Login: %v", err)
	}
	conn.online.Store(false)

	if _, err := v.Login(ctx, "EX-9", "anything"); !errors.Is(err, auth.ErrOfflineUnverified) {
		t.Fatalf("unverified offline err = %v", err)
	}
	id, err := v.Login(ctx, "EX-1", "anything")
	if err != nil {
		t.Fatalf("offline Login: %v", err)
	}
	if id.ExhibitorName != "Acme Ltd" {
		t.Fatalf("offline identity = %+v", id)
	}
	if calls.Load() != 1 {
		t.Fatalf("relay calls = %d, want 1", calls.Load())
	}
}

func TestRestoreAndChangeExhibitor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scans := testsupport.MustQueue(t, store, queue.NameScan)
	ctx := context.Background()

	if err := store.SetSlots(ctx, map[string]string{
		queue.SlotVerifiedExhibitorID:   "EX-1",
		queue.SlotVerifiedExhibitorName: "Acme Ltd",
	}); err != nil {
		t.Fatalf("SetSlots: %v", err)
	}
	if _, err := scans.Enqueue(ctx, "ev-1", []byte(`{"event_id":"ev-1"}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	v := auth.NewVerifier(cfg, store, newConnectivity(false), auth.WithPendingCounter(scans.Size))

	if _, ok, err := v.Restore(ctx, "EX-2"); err != nil || ok {
		t.Fatalf("Restore(other id) = %v, %v", ok, err)
	}
	id, ok, err := v.Restore(ctx, "EX-1")
	if err != nil || !ok || id.ExhibitorName != "Acme Ltd" {
		t.Fatalf("Restore = %+v, %v, %v", id, ok, err)
	}

	pending, err := v.ChangeExhibitor(ctx)
	if err != nil {
		t.Fatalf("ChangeExhibitor: %v", err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}
	if _, ok := v.ExhibitorID(ctx); ok {
		t.Fatal("identity still active after change")
	}
	if _, ok, _ := v.Current(ctx); ok {
		t.Fatal("identity still cached after change")
	}
}
