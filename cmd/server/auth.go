package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-chatbot/internal/config"
	"go-chatbot/internal/googleauth"
	"go-chatbot/internal/health"
	"go-chatbot/internal/identity"
	"go-chatbot/internal/logging"
	"go-chatbot/internal/security"
	"go-chatbot/internal/session"
)

const authService = "ChatAuth"

func newAuthCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Run the identity service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAuth()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAuth(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http service address (overrides AUTH_ADDR)")
	return cmd
}

func runAuth(ctx context.Context, cfg *config.Auth) error {
	logCfg := cfg.Log
	if logCfg.Sink == logging.SinkDB {
		// The identity service has no database; keep the file half of that sink.
		logCfg.Sink = logging.SinkFile
	}
	logger, closer, err := logging.New(logCfg, authService, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	envelope, err := security.NewEnvelope(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("envelope key: %w", err)
	}
	sessions := session.NewManager(cfg.SigningSecret, envelope, session.NewRegistry(), session.WithTTL(cfg.SessionTTL))

	exchanger, err := identity.NewOIDCExchanger(ctx, identity.Config{
		Issuer:       cfg.GoogleIssuer,
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.LoginRedirectURL(),
		Leeway:       cfg.IDTokenClockSkew,
	})
	if err != nil {
		logger.Error().Err(err).Str("issuer", cfg.GoogleIssuer).Msg("identity provider discovery failed")
		return err
	}

	hc := health.NewHandler(authService).
		Info("sessions", func() string { return fmt.Sprintf("%d active", sessions.ActiveSessions()) })

	router := authRouter(logger, googleauth.NewHandler(exchanger, sessions, logger), hc)
	logger.Info().Str("env", cfg.Log.Env).Dur("session_ttl", cfg.SessionTTL).Msg("identity service ready")
	return serve(ctx, logger, newServer(cfg.Addr, router))
}
