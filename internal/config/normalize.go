package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackend()
	c.normalizeStation()
	c.normalizeCamera()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir()
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackend() {
	if value, ok := os.LookupEnv("UUKSCAN_BACKEND_URL"); ok && strings.TrimSpace(value) != "" {
		c.Backend.BaseURL = value
	}
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendURL
	}
	c.Backend.Source = strings.TrimSpace(c.Backend.Source)
	if c.Backend.Source == "" {
		c.Backend.Source = defaultSource
	}
	if c.Backend.SubmitTimeoutSeconds == 0 {
		c.Backend.SubmitTimeoutSeconds = defaultSubmitTimeoutSeconds
	}
	if c.Backend.ProbeIntervalSeconds == 0 {
		c.Backend.ProbeIntervalSeconds = defaultProbeIntervalSeconds
	}
	if c.Backend.ProbeTimeoutSeconds == 0 {
		c.Backend.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
}

func (c *Config) normalizeStation() {
	if c.Station.ExhibitorID == "" {
		if value, ok := os.LookupEnv("UUKSCAN_EXHIBITOR_ID"); ok {
			c.Station.ExhibitorID = value
		}
	}
	c.Station.ExhibitorID = strings.TrimSpace(c.Station.ExhibitorID)
	if c.Station.ResultDelayMS == 0 {
		c.Station.ResultDelayMS = defaultResultDelayMS
	}
	if c.Station.SessionResultDelayMS == 0 {
		c.Station.SessionResultDelayMS = defaultSessionResultDelayMS
	}
	if c.Station.SessionDebounceMS == 0 {
		c.Station.SessionDebounceMS = defaultSessionDebounceMS
	}
}

func (c *Config) normalizeCamera() {
	c.Camera.Driver = strings.ToLower(strings.TrimSpace(c.Camera.Driver))
	if c.Camera.Driver == "" {
		c.Camera.Driver = defaultCameraDriver
	}
	c.Camera.Command = strings.TrimSpace(c.Camera.Command)
	if c.Camera.Driver == "exec" && c.Camera.Command == "" {
		c.Camera.Command = defaultCameraCommand
	}
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	c.Camera.TorchCommand = strings.TrimSpace(c.Camera.TorchCommand)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
