package telemetry_test

import (
	"context"
	"testing"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/telemetry"
)

func TestSetupNoop(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		enabled  bool
	}{
		{"empty endpoint", "", true},
		{"disabled", "http://localhost:4318", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shutdown, err := telemetry.Setup(context.Background(), "uukrelay-test", tc.endpoint, tc.enabled)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if err := shutdown(ctx); err != nil {
				t.Fatalf("noop shutdown should not error: %v", err)
			}
		})
	}
}

func TestSetupCreatesProvider(t *testing.T) {
	// Non-routable address; nothing is exported before shutdown.
	shutdown, err := telemetry.Setup(context.Background(), "uukrelay-test", "http://192.0.2.1:4318", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
