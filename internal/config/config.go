package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local storage locations.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Backend describes the relay the station delivers events to.
type Backend struct {
	BaseURL              string `toml:"base_url"`
	Source               string `toml:"source"`
	SubmitTimeoutSeconds int    `toml:"submit_timeout_seconds"`
	ProbeIntervalSeconds int    `toml:"probe_interval_seconds"`
	ProbeTimeoutSeconds  int    `toml:"probe_timeout_seconds"`
}

// Station contains operator-facing timing and identity defaults.
type Station struct {
	ExhibitorID          string `toml:"exhibitor_id"`
	ResultDelayMS        int    `toml:"result_delay_ms"`
	SessionResultDelayMS int    `toml:"session_result_delay_ms"`
	SessionDebounceMS    int    `toml:"session_debounce_ms"`
}

// Camera selects and configures the decode source.
type Camera struct {
	// Driver is "exec" for a decoder process or "stdin" for a keyboard-wedge reader.
	Driver       string   `toml:"driver"`
	Command      string   `toml:"command"`
	Args         []string `toml:"args"`
	Device       string   `toml:"device"`
	TorchCommand string   `toml:"torch_command"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	BacklogThreshold int    `toml:"backlog_threshold"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the scan station.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Backend       Backend       `toml:"backend"`
	Station       Station       `toml:"station"`
	Camera        Camera        `toml:"camera"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("uukscan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite file holding pending events and station slots.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LogFilePath returns the JSON log file written alongside console output.
func (c *Config) LogFilePath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "uukscan.log")
}

// LockPath returns the single-instance lock file for the station.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "uukscan.lock")
}

// SubmitTimeout bounds a single delivery attempt.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Backend.SubmitTimeoutSeconds) * time.Second
}

// ProbeInterval is the spacing between connectivity probes.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Backend.ProbeIntervalSeconds) * time.Second
}

// ProbeTimeout bounds a single connectivity probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Backend.ProbeTimeoutSeconds) * time.Second
}

// ResultDelay is how long a scan outcome stays on screen.
func (c *Config) ResultDelay() time.Duration {
	return time.Duration(c.Station.ResultDelayMS) * time.Millisecond
}

// SessionResultDelay is how long a session outcome stays on screen.
func (c *Config) SessionResultDelay() time.Duration {
	return time.Duration(c.Station.SessionResultDelayMS) * time.Millisecond
}

// SessionDebounce is the window after an accepted session decode in which
// further decodes are ignored.
func (c *Config) SessionDebounce() time.Duration {
	return time.Duration(c.Station.SessionDebounceMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultDataDir() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "uukscan")
	}
	return defaultDataDirFallback
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
