package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"go-chatbot/internal/authclient"
	"go-chatbot/internal/authproxy"
	"go-chatbot/internal/broker"
	"go-chatbot/internal/chat"
	"go-chatbot/internal/config"
	"go-chatbot/internal/db"
	"go-chatbot/internal/health"
	"go-chatbot/internal/logging"
	myMiddleware "go-chatbot/internal/middleware"
)

const apiService = "ChatAPI"

func newAPICommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Run the chat API gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAPI()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAPI(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http service address (overrides API_ADDR)")
	return cmd
}

func runAPI(ctx context.Context, cfg *config.API) error {
	bootCfg := cfg.Log
	bootCfg.Sink = logging.SinkStdout
	bootLog, _, err := logging.New(bootCfg, apiService, nil)
	if err != nil {
		return err
	}

	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		bootLog.Error().Err(err).Msg("failed to connect to DB")
		return err
	}
	defer database.Close()
	bootLog.Info().Msg("connected to PostgreSQL")

	if err := database.AutoMigrate(migrationModels()...); err != nil {
		bootLog.Error().Err(err).Msg("migration failed")
		return err
	}

	logger, closer, err := logging.New(cfg.Log, apiService, database.Gorm)
	if err != nil {
		return err
	}
	defer closer.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, ContextTimeoutEnabled: true})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Msg("failed to connect to Redis")
		return fmt.Errorf("redis ping: %w", err)
	}
	logger.Info().Msg("connected to Redis")

	bus := broker.NewRedisBroker(redisClient, broker.Config{
		AckTimeout: cfg.PublishAckTimeout,
		MaxLen:     cfg.StreamMaxLen,
		Block:      cfg.ConsumerBlock,
	})
	authClient := authclient.New(cfg.ChatAuthURL, cfg.AuthTimeout)

	repo := chat.NewRepository(database.Gorm)
	service := chat.NewService(repo, chat.NewGormSequence(database.Gorm), bus)
	hub := chat.NewHub(logger)
	consumer := chat.NewReplyConsumer(service, hub, bus, cfg.ConsumerGroup, cfg.ConsumerName, logger)

	go hub.Run(ctx)
	go func() {
		// A failed subscription is not restarted here; the supervisor
		// restarting the process brings it back.
		_ = consumer.Run(ctx)
	}()

	hc := health.NewHandler(apiService).
		With("postgres", database.Ping).
		With("redis", bus.Ping).
		With("chatauth", authClient.Ping)

	router := apiRouter(logger,
		chat.NewHandler(service, hub, logger),
		authproxy.NewHandler(authClient, logger),
		myMiddleware.NewAuthMiddleware(authClient, logger),
		hc,
	)
	logger.Info().Str("env", cfg.Log.Env).Str("consumer", cfg.ConsumerName).Msg("chat api ready")
	return serve(ctx, logger, newServer(cfg.Addr, router))
}
