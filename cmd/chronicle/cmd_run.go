package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dakeena/living-chronicle/internal/chronicle"
	"github.com/dakeena/living-chronicle/internal/config"
	"github.com/dakeena/living-chronicle/internal/engine"
	"github.com/dakeena/living-chronicle/internal/pantheon"
	"github.com/dakeena/living-chronicle/internal/persistence"
)

type runOptions struct {
	days    int
	fresh   bool
	verbose bool
	quiet   bool
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a number of days and narrate them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var opts runOptions
			opts.days, _ = cmd.Flags().GetInt("days")
			opts.fresh, _ = cmd.Flags().GetBool("fresh")
			opts.verbose, _ = cmd.Flags().GetBool("verbose")
			opts.quiet, _ = cmd.Flags().GetBool("quiet")
			if opts.days < 0 {
				return fmt.Errorf("--days must not be negative")
			}

			setupLogging(cfg, opts.quiet, cmd.ErrOrStderr())
			return runChronicle(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().Int("days", 0, "Number of days to simulate (0 runs until interrupted)")
	cmd.Flags().Bool("fresh", false, "Discard any saved world and start over")
	cmd.Flags().BoolP("verbose", "v", false, "Report every omen and myth")
	cmd.Flags().BoolP("quiet", "q", false, "Only print the final summary")
	return cmd
}

func runChronicle(ctx context.Context, out io.Writer, cfg *config.Config, opts runOptions) error {
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	k := engine.NewKernel(db, cfg.Seed, cfg.GenesisParams())
	if !opts.quiet {
		k.OnTick(chronicle.New(out, opts.verbose).Observe)
	}
	if err := k.Initialize(ctx, opts.fresh); err != nil {
		return fmt.Errorf("initialize world: %w", err)
	}

	printBanner(out, k)

	completed, err := simulate(ctx, out, k, opts.days)
	switch {
	case ctx.Err() != nil:
		slog.Info("run interrupted", "days_completed", completed)
	case err != nil:
		slog.Error("run stopped early", "days_completed", completed, "error", err)
	}

	// History outlives the run context so an interrupted run still reports.
	gods, loadErr := db.LoadGods(context.WithoutCancel(ctx), false)
	if loadErr != nil {
		slog.Warn("load god history failed", "error", loadErr)
	}
	printSummary(out, k, gods)

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// simulate runs the given number of days, or until ctx is cancelled when
// days is zero. Ticks persist under a context that outlives cancellation so
// an interrupt never cuts a day's save in half.
func simulate(ctx context.Context, out io.Writer, k *engine.Kernel, days int) (int, error) {
	tickCtx := context.WithoutCancel(ctx)
	if days > 0 {
		fmt.Fprintf(out, "Simulating %s days...\n\n", humanize.Comma(int64(days)))
	} else {
		fmt.Fprintf(out, "Simulating indefinitely (Ctrl+C to stop)...\n\n")
	}

	completed := 0
	for days <= 0 || completed < days {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if _, err := k.Tick(tickCtx); err != nil {
			return completed, err
		}
		completed++
	}
	return completed, nil
}

func printBanner(out io.Writer, k *engine.Kernel) {
	pop := k.Population()
	clock := k.Clock()

	fmt.Fprintln(out, "=== The Living Chronicle ===")
	fmt.Fprintf(out, "Seed %d. Day %s, the %s day of the Age of %s.\n",
		k.Seed(), humanize.Comma(int64(k.Day())), humanize.Ordinal(clock.DaysInEra+1), clock.Current)
	fmt.Fprintf(out, "%s souls in %d factions:\n", humanize.Comma(int64(len(pop.Living()))), len(pop.Factions))
	for _, f := range pop.Factions {
		fmt.Fprintf(out, "  %s (%d members)\n", f.Name, len(f.Members))
	}
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, k *engine.Kernel, history []*pantheon.God) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "=== Day %s, Age of %s ===\n", humanize.Comma(int64(k.Day())), k.Clock().Current)

	living := k.Pantheon().Living()
	if len(living) == 0 {
		fmt.Fprintln(out, "No gods walk the world.")
	} else {
		fmt.Fprintln(out, "Living gods:")
		for _, g := range living {
			fmt.Fprintf(out, "  %s, God of %s (belief %.2f, since day %s)\n",
				g.Name, chronicle.Title(g.Domain), g.BeliefStrength, humanize.Comma(int64(g.BirthDay)))
		}
	}

	var fallen []*pantheon.God
	for _, g := range history {
		if !g.Alive && g.DeathDay != nil {
			fallen = append(fallen, g)
		}
	}
	if len(fallen) > 0 {
		fmt.Fprintln(out, "Fallen gods:")
		for _, g := range fallen {
			fmt.Fprintf(out, "  %s, God of %s (day %s to %s)\n",
				g.Name, chronicle.Title(g.Domain), humanize.Comma(int64(g.BirthDay)), humanize.Comma(int64(*g.DeathDay)))
		}
	}
}
