package camera_test

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/camera"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
)

func collect(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var out []string
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case text, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, text)
		case <-timeout:
			t.Fatalf("timed out after %d decodes", len(out))
		}
	}
	return out
}

func TestExecCameraMissingBinary(t *testing.T) {
	cam := camera.NewExec(config.Camera{Command: "zbarcam"}, logging.NewNop(),
		camera.WithLookPath(func(string) (string, error) { return "", exec.ErrNotFound }),
	)
	_, err := cam.Start(context.Background(), camera.Constraints{})
	if !errors.Is(err, camera.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected underlying reason to be kept, got %v", err)
	}
}

func TestExecCameraReadsDecodes(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	cam := camera.NewExec(config.Camera{
		Command: "sh",
		Args:    []string{"-c", "printf 'QR-Code:TICKET-1\\n\\nTICKET-2\\n'; exec sleep 5"},
	}, logging.NewNop())

	stream, err := cam.Start(context.Background(), camera.Constraints{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := collect(t, stream.Decodes(), 2)
	if strings.Join(got, ",") != "TICKET-1,TICKET-2" {
		t.Fatalf("unexpected decodes %v", got)
	}
	if err := stream.SetTorch(true); !errors.Is(err, camera.ErrTorchUnsupported) {
		t.Fatalf("expected ErrTorchUnsupported, got %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if _, ok := <-stream.Decodes(); ok {
		t.Fatal("expected decodes to be closed after Stop")
	}
}

func TestExecCameraTorchCommand(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	cam := camera.NewExec(config.Camera{
		Command:      "sh",
		Args:         []string{"-c", "exec sleep 5"},
		TorchCommand: "true",
	}, logging.NewNop())
	stream, err := cam.Start(context.Background(), camera.Constraints{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stream.Stop()
	if err := stream.SetTorch(true); err != nil {
		t.Fatalf("SetTorch: %v", err)
	}
}

func TestLineCamera(t *testing.T) {
	if _, err := camera.NewLine(nil, logging.NewNop()).Start(context.Background(), camera.Constraints{}); !errors.Is(err, camera.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for nil reader, got %v", err)
	}

	reader, writer := io.Pipe()
	cam := camera.NewLine(reader, logging.NewNop())
	stream, err := cam.Start(context.Background(), camera.Constraints{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	go func() {
		_, _ = io.WriteString(writer, "  A-1 \nB-2\n")
	}()
	got := collect(t, stream.Decodes(), 2)
	if strings.Join(got, ",") != "A-1,B-2" {
		t.Fatalf("unexpected decodes %v", got)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	restarted, err := cam.Start(context.Background(), camera.Constraints{})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	go func() {
		_, _ = io.WriteString(writer, "C-3\n")
	}()
	if got := collect(t, restarted.Decodes(), 1); len(got) != 1 || got[0] != "C-3" {
		t.Fatalf("unexpected decodes after restart %v", got)
	}

	_ = writer.Close()
	if got := collect(t, restarted.Decodes(), 1); len(got) != 0 {
		t.Fatalf("expected closed stream at EOF, got %v", got)
	}
}
