package submit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
)

const userAgent = "uukscan/0.1.0"

// Transport performs one delivery attempt.
type Transport interface {
	Deliver(ctx context.Context, kind events.Kind, eventID string, payload []byte) error
}

// HTTPTransport posts payloads to the relay's /api routes.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport targets cfg.Backend.BaseURL. Attempt deadlines come from
// the caller's context, not the client.
func NewHTTPTransport(cfg *config.Config, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(cfg.Backend.BaseURL, "/"),
		client:  client,
	}
}

func (t *HTTPTransport) endpoint(kind events.Kind) string {
	return t.baseURL + "/api/" + string(kind)
}

// Deliver posts payload and treats any 2xx as acknowledged.
func (t *HTTPTransport) Deliver(ctx context.Context, kind events.Kind, eventID string, payload []byte) error {
	url := t.endpoint(kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrValidation, "submit", "build request", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if eventID != "" {
		req.Header.Set("X-Event-ID", eventID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			detail += ": " + trimmed
		}
		return services.Wrap(services.ErrServerRejected, "submit", "post "+string(kind), detail, nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func classifyTransportError(ctx context.Context, kind events.Kind, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "submit", "post "+string(kind), "attempt timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return services.Wrap(services.ErrTimeout, "submit", "post "+string(kind), "attempt timed out", err)
	default:
		return services.Wrap(services.ErrNetwork, "submit", "post "+string(kind), "", err)
	}
}
