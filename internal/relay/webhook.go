package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/telemetry"
)

const maxWebhookBody = 1 << 20

// webhookResponse is a successful webhook reply.
type webhookResponse struct {
	ContentType string
	Body        []byte
}

// forward posts payload as JSON to url with the configured timeout. Non-2xx
// replies are errors.
func (s *Server) forward(ctx context.Context, route, url string, payload any) (webhookResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "relay.webhook "+route)
	defer span.End()
	span.SetAttributes(attribute.String("relay.route", route))

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return webhookResponse{}, fmt.Errorf("encode %s payload: %w", route, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WebhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return webhookResponse{}, services.Wrap(services.ErrConfiguration, "relay", route, "build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set(requestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		if ctx.Err() != nil {
			return webhookResponse{}, services.Wrap(services.ErrTimeout, "relay", route, "webhook timed out", err)
		}
		return webhookResponse{}, services.Wrap(services.ErrNetwork, "relay", route, "webhook unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookBody))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return webhookResponse{}, services.Wrap(services.ErrNetwork, "relay", route, "read webhook response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		detail := fmt.Sprintf("webhook status %d: %s", resp.StatusCode, truncate(string(raw), 512))
		return webhookResponse{}, services.Wrap(services.ErrServerRejected, "relay", route, detail, nil)
	}
	return webhookResponse{ContentType: resp.Header.Get("Content-Type"), Body: raw}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
