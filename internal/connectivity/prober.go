package connectivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
)

// Prober checks the relay's health endpoint on an interval and reports each
// result to a Monitor.
type Prober struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	monitor  *Monitor
	logger   *slog.Logger
	trigger  chan struct{}
}

// NewProber targets <backend.base_url>/health.
func NewProber(cfg *config.Config, monitor *Monitor, client *http.Client, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	interval := cfg.ProbeInterval()
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := cfg.ProbeTimeout()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{
		url:      strings.TrimRight(cfg.Backend.BaseURL, "/") + "/health",
		interval: interval,
		timeout:  timeout,
		client:   client,
		monitor:  monitor,
		logger:   logging.NewComponentLogger(logger, "prober"),
		trigger:  make(chan struct{}, 1),
	}
}

// Check performs one probe and returns its error without touching the monitor.
func (p *Prober) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "prober", "build request", p.url, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "prober", "health", p.url, err)
		}
		return services.Wrap(services.ErrNetwork, "prober", "health", p.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrServerRejected, "prober", "health", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	return nil
}

// ProbeOnce runs Check and applies the result.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	err := p.Check(ctx)
	if err != nil {
		p.logger.Debug("health probe failed", logging.Error(err), logging.String("error_kind", services.Kind(err)))
	}
	if p.monitor != nil {
		p.monitor.RecordProbe(err)
	}
	return err == nil
}

// Trigger requests an immediate probe. Requests made while one is pending
// collapse into it.
func (p *Prober) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run probes until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeOnce(ctx)
		case <-p.trigger:
			p.ProbeOnce(ctx)
			ticker.Reset(p.interval)
		}
	}
}
