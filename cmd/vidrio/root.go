package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkrupp/vidrio/internal/infra/config"
	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	http_ "github.com/mkrupp/vidrio/internal/infra/transport/http"
	"github.com/mkrupp/vidrio/internal/repo/blob"
	"github.com/mkrupp/vidrio/internal/repo/user"
	"github.com/mkrupp/vidrio/internal/svc/authsvc"
	"github.com/mkrupp/vidrio/internal/svc/fotosvc"
)

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	// Runtime registers the Go runtime and process collectors
	Runtime bool `env:"RUNTIME" default:"true"`
}

// Config is the complete process configuration, read from VIDRIO_* variables.
type Config struct {
	config.EnvConfig

	Log       logging.LoggerConfig      `envPrefix:"LOG_"`
	HTTP      http_.HTTPTransportConfig `envPrefix:"HTTP_"`
	RateLimit http_.RateLimitConfig     `envPrefix:"HTTP_RATELIMIT_"`
	Metrics   MetricsConfig             `envPrefix:"METRICS_"`
	Database  database.Config           `envPrefix:"DATABASE_"`
	User      user.Config               `envPrefix:"USER_"`
	Auth      authsvc.AuthConfig        `envPrefix:"AUTH_"`
	Blob      blob.Config               `envPrefix:"BLOB_"`
	Fotos     fotosvc.FotosConfig       `envPrefix:"FOTOS_"`
}

// Global flags available to all subcommands.
var envFile string

// NewRootCmd creates the root command for the vidrio CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Vidrio - business web application",
		Long: `Vidrio serves user registration and login, the dashboard, the medidas
catalog and the fotos store. Configuration is read from VIDRIO_* environment
variables, optionally loaded from a dotenv file.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}

// loadConfig reads the dotenv file, parses Config and configures logging.
func loadConfig(ctx context.Context) (Config, error) {
	var cfg Config

	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return cfg, fmt.Errorf("load dotenv: %w", err)
		}
	}

	if err := config.Parse(ctx, &cfg, strings.ToUpper(appName)); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := logging.Configure(ctx, cfg.Log, appName); err != nil {
		return cfg, fmt.Errorf("configure logging: %w", err)
	}

	return cfg, nil
}
