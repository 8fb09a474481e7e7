package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/service"
)

func init() {
	rootCmd.AddCommand(worktimeCmd)
	rootCmd.AddCommand(statsCmd)
}

var worktimeCmd = &cobra.Command{
	Use:   "worktime <card>",
	Short: "Show today's time inside for a card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wt, err := reportService().WorkTime(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to compute work time: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			return formatOutput(out, wt)
		}

		where := "outside"
		if wt.Inside {
			where = "inside"
		}
		fmt.Fprintf(out, "%s on %s: %s over %d entries (%s)\n", wt.CardID, wt.Date, wt.HM, wt.Entries, where)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [today|this_week|this_month]...",
	Short: "Average time inside per entry",
	Long: `Average time inside per entry for every registered card. With no
arguments all three periods are shown.`,
	ValidArgs: []string{"today", "this_week", "this_month"},
	Args:      cobra.OnlyValidArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		periods := service.Periods
		if len(args) > 0 {
			periods = nil
			for _, a := range args {
				p, err := service.ParsePeriod(a)
				if err != nil {
					return err
				}
				periods = append(periods, p)
			}
		}

		var all []*models.PeriodStats
		for _, p := range periods {
			st, err := reportService().Stats(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("failed to compute %s stats: %w", p, err)
			}
			all = append(all, st)
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			return formatOutput(out, all)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PERIOD\tCARD\tENTRIES\tAVG HOURS\tAVG")
		for _, st := range all {
			if len(st.Cards) == 0 {
				fmt.Fprintf(w, "%s\t-\t0\t-\t-\n", st.Period)
				continue
			}
			for _, c := range st.Cards {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					st.Period, c.CardID, c.Entries, c.AverageHours.StringFixed(2), c.AverageHM)
			}
		}
		return w.Flush()
	},
}
