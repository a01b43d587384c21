package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/relay"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/telemetry"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "uukrelay",
		Short:         "Relay scan, session and auth requests to n8n webhooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	return cmd
}

// loadEnvFile reads envFile when present. A missing default file is fine; a
// missing file named explicitly is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := relay.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, "uukrelay", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		logging.WarnWithContext(logger, "tracing disabled", "telemetry_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "webhook spans are not exported"),
			logging.String(logging.FieldErrorHint, "check UUK_RELAY_OTEL_ENDPOINT"),
		)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown failed", logging.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	return relay.New(cfg, logger).Run(ctx)
}
