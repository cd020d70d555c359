package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dakeena/living-chronicle/internal/chronicle"
	"github.com/dakeena/living-chronicle/internal/persistence"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved world without advancing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg, true, cmd.ErrOrStderr())

			db, err := persistence.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return printStatus(cmd.Context(), cmd.OutOrStdout(), db)
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, db *persistence.DB) error {
	ws, err := db.LoadWorldState(ctx)
	if err != nil {
		return err
	}
	if ws == nil {
		fmt.Fprintln(out, "No world has been created yet. Run 'chronicle run' first.")
		return nil
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		return err
	}
	gods, err := db.LoadGods(ctx, true)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Day:       %s\n", humanize.Comma(int64(ws.CurrentDay)))
	fmt.Fprintf(out, "Era:       %s (%s day)\n", ws.Era, humanize.Ordinal(ws.DaysInEra+1))
	fmt.Fprintf(out, "Seed:      %d\n", ws.Seed)
	fmt.Fprintf(out, "Factions:  %d\n", counts.Factions)
	fmt.Fprintf(out, "Citizens:  %s living of %s\n", humanize.Comma(int64(counts.LivingCitizens)), humanize.Comma(int64(counts.Citizens)))
	fmt.Fprintf(out, "Gods:      %d living, %d fallen\n", counts.LivingGods, counts.Gods-counts.LivingGods)
	fmt.Fprintf(out, "Myths:     %s\n", humanize.Comma(int64(counts.Myths)))
	for _, g := range gods {
		fmt.Fprintf(out, "  %s, God of %s (belief %.2f)\n", g.Name, chronicle.Title(g.Domain), g.BeliefStrength)
	}
	return nil
}
