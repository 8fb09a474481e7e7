package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
	"github.com/avvvet/gate-services/internal/gatesvc/service"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)

	sessionListCmd.Flags().StringP("card", "c", "", "Only sessions of this card")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect presence sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		card, _ := cmd.Flags().GetString("card")

		var (
			list []models.Session
			err  error
		)
		if card != "" {
			list, err = cardService().History(cmd.Context(), card)
		} else {
			list, err = cardService().Sessions(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			if len(list) == 0 {
				fmt.Fprintln(out, "[]")
				return nil
			}
			return formatOutput(out, list)
		}

		if len(list) == 0 {
			fmt.Fprintln(out, "No sessions recorded.")
			return nil
		}

		now := time.Now()
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CARD\tENTER\tEXIT\tDURATION")
		for _, s := range list {
			exit := "inside"
			if s.ExitTime != nil {
				exit = s.ExitTime.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.CardID, s.EnterTime.Local().Format(time.DateTime), exit,
				service.FormatHM(s.DurationUntil(now)))
		}
		return w.Flush()
	},
}
