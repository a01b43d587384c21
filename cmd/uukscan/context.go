package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/station"
)

var errNotLoggedIn = errors.New("no exhibitor logged in; run `uukscan auth login` first")

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		if c.verboseFlag != nil && *c.verboseFlag {
			cfg.Logging.Level = "debug"
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// openStation takes the station lock. Commands that change queues or
// identity go through here so they never race a running station.
func (c *commandContext) openStation(cmd *cobra.Command, opts station.Options) (*station.Station, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger
	st, err := station.Open(cmd.Context(), cfg, opts)
	if errors.Is(err, station.ErrAlreadyRunning) {
		return nil, fmt.Errorf("%w; stop it or wait for it to exit", err)
	}
	return st, err
}

func (c *commandContext) withStation(cmd *cobra.Command, opts station.Options, fn func(*station.Station) error) error {
	st, err := c.openStation(cmd, opts)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

// withStore opens the queue database without the station lock for
// read-only views.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
