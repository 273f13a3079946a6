package main

import (
	"github.com/spf13/cobra"

	"go-chatbot/internal/chat"
	"go-chatbot/internal/config"
	"go-chatbot/internal/db"
	"go-chatbot/internal/logging"
)

func migrationModels() []any {
	return append(chat.Models(), &logging.SystemLog{})
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the chat API tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAPI()
			if err != nil {
				return err
			}
			logCfg := cfg.Log
			logCfg.Sink = logging.SinkStdout
			logger, _, err := logging.New(logCfg, apiService, nil)
			if err != nil {
				return err
			}

			database, err := db.NewDatabase(cfg.DatabaseDSN)
			if err != nil {
				logger.Error().Err(err).Msg("failed to connect to DB")
				return err
			}
			defer database.Close()

			if err := database.AutoMigrate(migrationModels()...); err != nil {
				logger.Error().Err(err).Msg("migration failed")
				return err
			}
			logger.Info().Int("tables", len(migrationModels())).Msg("database schema initialized")
			return nil
		},
	}
}
