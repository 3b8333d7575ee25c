package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hipsterbar/internal/config"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the storage schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := commonRun(cfg)

			repo, err := openRepository(cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema ready", "component", programName, "storage", cfg.Storage)
			return nil
		},
	}
}

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history CODE",
		Short: "Print the recorded events of a bar as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := commonRun(cfg)

			repo, err := openRepository(cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := newService(cfg, repo, logger, nil, nil)
			events, err := svc.History(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
