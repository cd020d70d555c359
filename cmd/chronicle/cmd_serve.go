package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dakeena/living-chronicle/internal/api"
	"github.com/dakeena/living-chronicle/internal/chronicle"
	"github.com/dakeena/living-chronicle/internal/engine"
	"github.com/dakeena/living-chronicle/internal/persistence"
)

// hubBuffer is how many tick results a slow push client may lag behind.
const hubBuffer = 32

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the world over HTTP, optionally running it in real time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port, _ = cmd.Flags().GetInt("port")
			}
			fresh, _ := cmd.Flags().GetBool("fresh")
			autorun, _ := cmd.Flags().GetBool("autorun")
			narrate, _ := cmd.Flags().GetBool("narrate")

			setupLogging(cfg, false, cmd.ErrOrStderr())
			ctx := cmd.Context()

			db, err := persistence.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			slog.Info("database opened", "path", cfg.DBPath)

			k := engine.NewKernel(db, cfg.Seed, cfg.GenesisParams())
			if narrate {
				k.OnTick(chronicle.New(cmd.OutOrStdout(), false).Observe)
			}
			if err := k.Initialize(ctx, fresh); err != nil {
				return fmt.Errorf("initialize world: %w", err)
			}
			slog.Info("world ready",
				"day", k.Day(),
				"era", k.Clock().Current.String(),
				"citizens", len(k.Population().Living()),
				"living_gods", len(k.Pantheon().Living()),
			)

			runner := engine.NewRunner(k, engine.NewHub(hubBuffer))
			runner.Interval = cfg.Run.Interval
			defer runner.Stop()

			if autorun {
				if err := runner.Start(ctx, cfg.Run.Speed); err != nil {
					return err
				}
			}

			srv := &api.Server{
				Runner:   runner,
				Archive:  db,
				Port:     cfg.API.Port,
				AdminKey: cfg.API.AdminKey,
				RelayKey: cfg.API.RelayKey,

				CORSOrigins: cfg.API.CORSOrigins,
				RunCtx:      ctx,
			}
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	cmd.Flags().Bool("fresh", false, "Discard any saved world and start over")
	cmd.Flags().Bool("autorun", false, "Start ticking immediately at the configured speed")
	cmd.Flags().Bool("narrate", false, "Also write the chronicle to stdout")
	return cmd
}
