package main

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"hipsterbar/internal/chaos"
	"hipsterbar/internal/config"
	"hipsterbar/internal/game"
)

func chaosCommand() *cobra.Command {
	var (
		duration time.Duration
		pause    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Run fault injection experiments against the game service",
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

			faults := chaos.NewFaultyRepository(repo)
			target := chaos.Target{
				Service: newService(cfg, faults, logger, nil, game.NewHub(nil)),
				Faults:  faults,
			}
			engine := chaos.NewEngine(logger, duration/5)
			engine.RegisterExperiments(target, duration)

			held, err := engine.ExecuteGameDay(cmd.Context(), chaos.GameDay{
				Name:      "hipsterbar game day",
				Scenarios: engine.Experiments(),
				Pause:     pause,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, r := range engine.Results() {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			if !held {
				return errors.New("at least one hypothesis was violated")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "observation time per experiment")
	cmd.Flags().DurationVar(&pause, "pause", time.Second, "pause between experiments")
	return cmd
}
