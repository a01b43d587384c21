package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateStation(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute URL, got %q", c.Backend.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", parsed.Scheme)
	}
	if c.Backend.SubmitTimeoutSeconds < 0 {
		return errors.New("backend.submit_timeout_seconds must be positive")
	}
	if c.Backend.ProbeIntervalSeconds < 0 {
		return errors.New("backend.probe_interval_seconds must be positive")
	}
	if c.Backend.ProbeTimeoutSeconds < 0 {
		return errors.New("backend.probe_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStation() error {
	if c.Station.ResultDelayMS < 0 {
		return errors.New("station.result_delay_ms must be positive")
	}
	if c.Station.SessionResultDelayMS < 0 {
		return errors.New("station.session_result_delay_ms must be positive")
	}
	if c.Station.SessionDebounceMS < 0 {
		return errors.New("station.session_debounce_ms must be positive")
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.Driver {
	case "exec":
		if c.Camera.Command == "" {
			return errors.New("camera.command must be set when camera.driver is exec")
		}
	case "stdin":
	default:
		return fmt.Errorf("camera.driver must be exec or stdin, got %q", c.Camera.Driver)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.BacklogThreshold < 0 {
		return errors.New("notifications.backlog_threshold must be zero or positive")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
