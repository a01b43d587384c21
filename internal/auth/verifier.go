package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
)

const defaultTimeout = 5 * time.Second

var (
	// ErrInvalidCredential reports a wrong passcode.
	ErrInvalidCredential = errors.New("invalid passcode")
	// ErrOfflineUnverified rejects offline login for an id never verified online.
	ErrOfflineUnverified = errors.New("authentication requires an internet connection for new or unverified IDs")
	// ErrMissingCredentials rejects an empty id or passcode.
	ErrMissingCredentials = errors.New("exhibitor id and passcode are required")
)

// Identity is a verified exhibitor.
type Identity struct {
	ExhibitorID   string
	ExhibitorName string
}

// DisplayName prefers the exhibitor's name over its id.
func (i Identity) DisplayName() string {
	if i.ExhibitorName != "" {
		return i.ExhibitorName
	}
	return i.ExhibitorID
}

// SlotStore persists the cached identity.
type SlotStore interface {
	GetSlot(ctx context.Context, key string) (string, bool, error)
	SetSlots(ctx context.Context, slots map[string]string) error
	DeleteSlots(ctx context.Context, keys ...string) error
}

// Connectivity reports whether the relay is reachable.
type Connectivity interface {
	Online() bool
}

// Option configures a Verifier.
type Option func(*Verifier)

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.client = client
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logging.NewComponentLogger(logger, "auth")
	}
}

// WithPendingCounter lets ChangeExhibitor report unsynced scans.
func WithPendingCounter(fn func() int) Option {
	return func(v *Verifier) {
		v.pending = fn
	}
}

// Verifier logs a station in and remembers who is logged in.
type Verifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
	slots   SlotStore
	online  Connectivity
	logger  *slog.Logger
	pending func() int

	mu     sync.Mutex
	active *Identity
}

// NewVerifier targets <backend.base_url>/api/auth.
func NewVerifier(cfg *config.Config, slots SlotStore, online Connectivity, opts ...Option) *Verifier {
	timeout := cfg.SubmitTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	v := &Verifier{
		url:     strings.TrimRight(cfg.Backend.BaseURL, "/") + "/api/auth",
		client:  &http.Client{},
		timeout: timeout,
		slots:   slots,
		online:  online,
		logger:  logging.NewComponentLogger(nil, "auth"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Current returns the cached identity from storage.
func (v *Verifier) Current(ctx context.Context) (Identity, bool, error) {
	id, ok, err := v.slots.GetSlot(ctx, queue.SlotVerifiedExhibitorID)
	if err != nil || !ok || id == "" {
		return Identity{}, false, err
	}
	name, _, err := v.slots.GetSlot(ctx, queue.SlotVerifiedExhibitorName)
	if err != nil {
		return Identity{}, false, err
	}
	return Identity{ExhibitorID: id, ExhibitorName: name}, true, nil
}

// Restore logs in without a passcode when exhibitorID was verified before.
// An empty exhibitorID restores whatever identity is cached.
func (v *Verifier) Restore(ctx context.Context, exhibitorID string) (Identity, bool, error) {
	cached, ok, err := v.Current(ctx)
	if err != nil || !ok {
		return Identity{}, false, err
	}
	exhibitorID = strings.TrimSpace(exhibitorID)
	if exhibitorID != "" && exhibitorID != cached.ExhibitorID {
		return Identity{}, false, nil
	}
	v.setActive(&cached)
	return cached, true, nil
}

// ExhibitorID reports the logged-in exhibitor for consent gating.
func (v *Verifier) ExhibitorID(context.Context) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return "", false
	}
	return v.active.ExhibitorID, true
}

// Active returns the logged-in identity.
func (v *Verifier) Active() (Identity, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return Identity{}, false
	}
	return *v.active, true
}

func (v *Verifier) setActive(id *Identity) {
	v.mu.Lock()
	v.active = id
	v.mu.Unlock()
}

// authResponse covers both the relay's verdict and a raw hash lookup.
type authResponse struct {
	Verified      *bool  `json:"verified"`
	ExhibitorName string `json:"exhibitor_name"`
	Name          string `json:"name"`
	PasscodeHash  string `json:"passcode_hash"`
	Hash          string `json:"hash"`
	Error         string `json:"error"`
}

// Login verifies exhibitorID and passcode. Offline, only the cached
// exhibitor id is accepted, without checking the passcode.
func (v *Verifier) Login(ctx context.Context, exhibitorID, passcode string) (Identity, error) {
	exhibitorID = strings.TrimSpace(exhibitorID)
	passcode = strings.TrimSpace(passcode)
	if exhibitorID == "" || passcode == "" {
		return Identity{}, ErrMissingCredentials
	}

	if v.online != nil && !v.online.Online() {
		cached, ok, err := v.Current(ctx)
		if err != nil {
			return Identity{}, fmt.Errorf("read cached identity: %w", err)
		}
		if !ok || cached.ExhibitorID != exhibitorID {
			return Identity{}, ErrOfflineUnverified
		}
		v.setActive(&cached)
		v.logger.Info("offline login accepted for previously verified exhibitor",
			logging.String(logging.FieldEventType, "auth_offline_login"),
			logging.String(logging.FieldExhibitorID, exhibitorID),
		)
		return cached, nil
	}

	resp, err := v.request(ctx, exhibitorID, passcode)
	if err != nil {
		return Identity{}, err
	}

	verified := false
	switch {
	case resp.PasscodeHash != "" || resp.Hash != "":
		hash := resp.PasscodeHash
		if hash == "" {
			hash = resp.Hash
		}
		verified = HashMatches(passcode, hash)
	case resp.Verified != nil:
		verified = *resp.Verified
	default:
		return Identity{}, services.Wrap(services.ErrServerRejected, "auth", "login", "response carried no verdict", nil)
	}
	if !verified {
		v.logger.Info("login rejected",
			logging.String(logging.FieldEventType, "auth_rejected"),
			logging.String(logging.FieldExhibitorID, exhibitorID),
		)
		return Identity{}, ErrInvalidCredential
	}

	name := strings.TrimSpace(resp.ExhibitorName)
	if name == "" {
		name = strings.TrimSpace(resp.Name)
	}
	identity := Identity{ExhibitorID: exhibitorID, ExhibitorName: name}
	if err := v.cache(ctx, identity); err != nil {
		return identity, err
	}
	v.setActive(&identity)
	v.logger.Info("exhibitor verified",
		logging.String(logging.FieldEventType, "auth_verified"),
		logging.String(logging.FieldExhibitorID, exhibitorID),
	)
	return identity, nil
}

func (v *Verifier) request(ctx context.Context, exhibitorID, passcode string) (authResponse, error) {
	body, err := json.Marshal(map[string]string{"exhibitor_id": exhibitorID, "passcode": passcode})
	if err != nil {
		return authResponse{}, fmt.Errorf("encode auth request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return authResponse{}, services.Wrap(services.ErrConfiguration, "auth", "build request", v.url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return authResponse{}, services.Wrap(services.ErrTimeout, "auth", "login", "error contacting authentication service", err)
		}
		return authResponse{}, services.Wrap(services.ErrNetwork, "auth", "login", "error contacting authentication service", err)
	}
	defer httpResp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
	var parsed authResponse
	_ = json.Unmarshal(raw, &parsed)

	if httpResp.StatusCode == http.StatusUnauthorized {
		return authResponse{}, ErrInvalidCredential
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail := fmt.Sprintf("status %d", httpResp.StatusCode)
		if parsed.Error != "" {
			detail += ": " + parsed.Error
		}
		return authResponse{}, services.Wrap(services.ErrServerRejected, "auth", "login", detail, nil)
	}
	return parsed, nil
}

func (v *Verifier) cache(ctx context.Context, id Identity) error {
	if err := v.slots.SetSlots(ctx, map[string]string{
		queue.SlotVerifiedExhibitorID:   id.ExhibitorID,
		queue.SlotVerifiedExhibitorName: id.ExhibitorName,
	}); err != nil {
		return fmt.Errorf("cache identity: %w", err)
	}
	return nil
}

// Logout forgets the cached identity.
func (v *Verifier) Logout(ctx context.Context) error {
	v.setActive(nil)
	if err := v.slots.DeleteSlots(ctx, queue.SlotVerifiedExhibitorID, queue.SlotVerifiedExhibitorName); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

// ChangeExhibitor invalidates the current identity ahead of a new login and
// returns how many events are still waiting to sync.
func (v *Verifier) ChangeExhibitor(ctx context.Context) (int, error) {
	pending := 0
	if v.pending != nil {
		pending = v.pending()
	}
	if err := v.Logout(ctx); err != nil {
		return pending, err
	}
	return pending, nil
}
