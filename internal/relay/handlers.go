package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/auth"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
)

// SessionSource tags session reports forwarded to the webhook.
const SessionSource = "vercel-session-scan"

// Response bodies shared with stations and tests.
const (
	msgMissingFields       = "Missing fields"
	msgMissingSessionName  = "Missing session_name"
	msgMissingBody         = "Missing request body"
	msgMissingCredentials  = "Missing exhibitor_id or passcode"
	msgMisconfigured       = "Server misconfiguration"
	msgScanForwardFailed   = "Failed to forward scan"
	msgSessionForwardFail  = "Failed to forward session"
	msgAuthFailed          = "Failed to authenticate with n8n"
	msgInvalidAuthResponse = "Invalid response from authentication service"
	msgInvalidPasscode     = "Invalid passcode"
)

// bindObject decodes a JSON object body. Anything unparseable yields nil.
func bindObject(c *gin.Context) map[string]any {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil
	}
	return body
}

// present mirrors the loose "field is set" test the stations rely on: nil,
// false, zero and empty strings all count as missing.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	default:
		return true
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (s *Server) scan(c *gin.Context) {
	body := bindObject(c)
	if !present(body["ticket_id"]) || !present(body["exhibitor_id"]) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingFields})
		return
	}

	logger := s.requestLogger(c)
	logger.Info("scan received",
		logging.String(logging.FieldEventType, "scan_received"),
		logging.String(logging.FieldEventID, text(body["event_id"])),
		logging.String("ticket_id", text(body["ticket_id"])),
		logging.String(logging.FieldExhibitorID, text(body["exhibitor_id"])),
		logging.Any("consent", body["consent"]),
		logging.String("received_at", events.FormatTime(time.Now())),
	)

	if s.cfg.ScanWebhookURL != "" {
		if _, err := s.forward(c.Request.Context(), "scan", s.cfg.ScanWebhookURL, body); err != nil {
			logging.ErrorWithContext(logger, "scan webhook failed", "scan_forward_failed",
				logging.Error(err),
				logging.String("error_kind", services.Kind(err)),
				logging.String(logging.FieldImpact, "station keeps the scan queued and retries"),
				logging.String(logging.FieldErrorHint, "check N8N_SCAN_WEBHOOK_URL and the n8n workflow"),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgScanForwardFailed})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) session(c *gin.Context) {
	body := bindObject(c)
	if !present(body["session_name"]) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingSessionName})
		return
	}

	logger := s.requestLogger(c)
	if s.cfg.SessionWebhookURL == "" {
		logging.ErrorWithContext(logger, "session webhook not configured", "relay_misconfigured",
			logging.String(logging.FieldImpact, "session reports are rejected"),
			logging.String(logging.FieldErrorHint, "set N8N_SESSION_WEBHOOK_URL"),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgMisconfigured})
		return
	}

	barcodes := body["barcodes"]
	if barcodes == nil {
		barcodes = []any{}
	}
	payload := map[string]any{
		"event_id":     body["event_id"],
		"session_name": body["session_name"],
		"exhibitor_id": body["exhibitor_id"],
		"qr_count":     body["qr_count"],
		"manual_count": body["manual_count"],
		"total_count":  body["total_count"],
		"started_at":   body["started_at"],
		"completed_at": body["completed_at"],
		"barcodes":     barcodes,
		"type":         events.SessionTypeReport,
		"source":       SessionSource,
	}

	if _, err := s.forward(c.Request.Context(), "session", s.cfg.SessionWebhookURL, payload); err != nil {
		logging.ErrorWithContext(logger, "session webhook failed", "session_forward_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldImpact, "station keeps the report queued and retries"),
			logging.String(logging.FieldErrorHint, "check N8N_SESSION_WEBHOOK_URL and the n8n workflow"),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgSessionForwardFail})
		return
	}
	logger.Info("session report forwarded",
		logging.String(logging.FieldEventType, "session_forwarded"),
		logging.String("session_name", text(body["session_name"])),
	)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) auth(c *gin.Context) {
	body := bindObject(c)
	if body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingBody})
		return
	}
	if !present(body["exhibitor_id"]) || !present(body["passcode"]) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingCredentials})
		return
	}
	exhibitorID := text(body["exhibitor_id"])
	passcode := text(body["passcode"])

	logger := s.requestLogger(c).With(logging.String(logging.FieldExhibitorID, exhibitorID))
	if s.cfg.AuthWebhookURL == "" {
		logging.ErrorWithContext(logger, "auth webhook not configured", "relay_misconfigured",
			logging.String(logging.FieldImpact, "exhibitors cannot log in"),
			logging.String(logging.FieldErrorHint, "set N8N_AUTH_WEBHOOK_URL"),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgMisconfigured})
		return
	}

	resp, err := s.forward(c.Request.Context(), "auth", s.cfg.AuthWebhookURL, map[string]string{"exhibitor_id": exhibitorID})
	if err != nil {
		logging.ErrorWithContext(logger, "auth webhook failed", "auth_forward_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldImpact, "login rejected"),
			logging.String(logging.FieldErrorHint, "check N8N_AUTH_WEBHOOK_URL and the n8n workflow"),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgAuthFailed})
		return
	}

	hash, name := parseAuthLookup(resp)
	if hash == "" || strings.Contains(hash, "<!DOCTYPE") {
		logging.ErrorWithContext(logger, "auth webhook returned no usable hash", "auth_invalid_response",
			logging.String("content_type", resp.ContentType),
			logging.String(logging.FieldImpact, "login rejected"),
			logging.String(logging.FieldErrorHint, "the n8n auth workflow must return passcode_hash or hash as JSON"),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInvalidAuthResponse})
		return
	}

	if !auth.HashMatches(passcode, hash) {
		logger.Info("passcode rejected", logging.String(logging.FieldEventType, "auth_rejected"))
		c.JSON(http.StatusUnauthorized, gin.H{"verified": false, "error": msgInvalidPasscode})
		return
	}

	var exhibitorName any
	if name = strings.TrimSpace(name); name != "" {
		exhibitorName = name
	}
	logger.Info("exhibitor verified", logging.String(logging.FieldEventType, "auth_verified"))
	c.JSON(http.StatusOK, gin.H{"verified": true, "exhibitor_name": exhibitorName})
}

// parseAuthLookup pulls the passcode hash and display name from a webhook
// reply. Only JSON objects carry them.
func parseAuthLookup(resp webhookResponse) (hash, name string) {
	if !strings.Contains(strings.ToLower(resp.ContentType), "application/json") {
		return "", ""
	}
	var data map[string]any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return "", ""
	}
	hash = text(data["passcode_hash"])
	if !present(data["passcode_hash"]) {
		hash = text(data["hash"])
		if !present(data["hash"]) {
			hash = ""
		}
	}
	name = text(data["exhibitor_name"])
	if !present(data["exhibitor_name"]) {
		name = text(data["name"])
		if !present(data["name"]) {
			name = ""
		}
	}
	return hash, name
}
