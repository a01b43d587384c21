package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
)

const userAgent = "uukscan/0.1.0"

// Service defines the notification surface exposed to station components.
type Service interface {
	NotifyBacklog(ctx context.Context, queue string, pending int) error
	NotifyDrainCompleted(ctx context.Context, queue string, delivered int) error
	NotifyStorageDegraded(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		station:  strings.TrimSpace(cfg.Station.ExhibitorID),
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	station  string
	client   *http.Client
}

func (n *ntfyService) title(suffix string) string {
	if n.station == "" {
		return "UUK Scan - " + suffix
	}
	return fmt.Sprintf("UUK Scan %s - %s", n.station, suffix)
}

func (n *ntfyService) NotifyBacklog(ctx context.Context, queue string, pending int) error {
	data := payload{
		title:    n.title("Offline Backlog"),
		message:  fmt.Sprintf("📥 %d %s event(s) waiting to sync", pending, strings.TrimSpace(queue)),
		tags:     []string{"uukscan", "queue", "backlog"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDrainCompleted(ctx context.Context, queue string, delivered int) error {
	data := payload{
		title:   n.title("Synced"),
		message: fmt.Sprintf("✅ Synced %d %s event(s); queue is empty", delivered, strings.TrimSpace(queue)),
		tags:    []string{"uukscan", "queue", "synced"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStorageDegraded(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Local storage problem")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" during ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	builder.WriteString("\nExport pending events before restarting.")

	data := payload{
		title:    n.title("Storage Degraded"),
		message:  builder.String(),
		tags:     []string{"uukscan", "storage", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    n.title("Test"),
		message:  "🧪 Notification system test",
		tags:     []string{"uukscan", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBacklog(context.Context, string, int) error           { return nil }
func (noopService) NotifyDrainCompleted(context.Context, string, int) error    { return nil }
func (noopService) NotifyStorageDegraded(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
