package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chemcloud-org/chemcloud/internal/backend"
	"github.com/chemcloud-org/chemcloud/internal/broker"
	"github.com/chemcloud-org/chemcloud/internal/config"
	"github.com/chemcloud-org/chemcloud/internal/frontend"
	"github.com/chemcloud-org/chemcloud/internal/frontend/api"
	"github.com/chemcloud-org/chemcloud/internal/frontend/auth"
	"github.com/chemcloud-org/chemcloud/internal/logger"
)

const (
	backgroundWorkers = 4
	backgroundQueue   = 256
)

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the gateway server",
		Long:  `chemcloud server [--host=<host>] [--port=<port>]`,
		PreRun: func(cmd *cobra.Command, _ []string) {
			_ = viper.BindPFlag("host", cmd.Flags().Lookup("host"))
			_ = viper.BindPFlag("port", cmd.Flags().Lookup("port"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log := logger.New(logger.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
			})
			ctx := logger.WithLogger(cmd.Context(), log)
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := buildServer(ctx, cfg)
			if err != nil {
				logger.Error(ctx, "failed to build server", "err", err)
				return err
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringP("host", "s", "", "server host (default is 127.0.0.1)")
	cmd.Flags().StringP("port", "p", "", "server port (default is 8000)")
	return cmd
}

func buildServer(ctx context.Context, cfg *config.Config) (*frontend.Server, error) {
	brokerClient, err := broker.NewRedis(cfg.BrokerURL, cfg.DefaultQueue)
	if err != nil {
		return nil, err
	}
	store, err := backend.NewRedis(cfg.BackendURL)
	if err != nil {
		return nil, err
	}

	var verifier auth.TokenVerifier
	var auth0 *auth.Auth0Client
	if cfg.AuthConfigured() {
		v, err := auth.NewOIDCVerifier(ctx, cfg)
		if err != nil {
			return nil, err
		}
		verifier = v
		auth0 = auth.NewAuth0Client(cfg)
	} else {
		logger.Warn(ctx, "auth0 not configured; compute routes are unguarded")
	}

	runner := frontend.NewRunner(ctx, backgroundWorkers, backgroundQueue)
	a := api.New(cfg, brokerClient, store, verifier, auth0, runner)
	return frontend.NewServer(cfg, a, runner), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}

var version = "dev"
