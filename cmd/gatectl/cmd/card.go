package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cardCmd)
	cardCmd.AddCommand(cardListCmd)
	cardCmd.AddCommand(cardRegisterCmd)
	cardCmd.AddCommand(cardUnregisterCmd)
}

var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Manage registered cards",
}

var cardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		cards, err := cardService().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list cards: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputFormat != "table" {
			if len(cards) == 0 {
				fmt.Fprintln(out, "[]")
				return nil
			}
			return formatOutput(out, cards)
		}

		if len(cards) == 0 {
			fmt.Fprintln(out, "No cards registered. Use 'gatectl card register' to add one.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CARD\tREGISTERED")
		for _, c := range cards {
			fmt.Fprintf(w, "%s\t%s\n", c.CardID, c.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var cardRegisterCmd = &cobra.Command{
	Use:   "register <card>",
	Short: "Register a card",
	Long: `Register a card so it may enter.

Examples:
  gatectl card register "[12, 0, 255, 7, 3]"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		card, err := cardService().Register(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to register card: %w", err)
		}

		if outputFormat == "json" || outputFormat == "yaml" {
			return formatOutput(cmd.OutOrStdout(), map[string]any{
				"status": "registered",
				"card":   card,
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Registered card %s.\n", card.CardID)
		return nil
	},
}

var cardUnregisterCmd = &cobra.Command{
	Use:     "unregister <card>",
	Aliases: []string{"remove"},
	Short:   "Unregister a card",
	Long: `Unregister a card. Its session history is kept and an open session
can still be closed by an exit scan.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cardService().Unregister(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to unregister card: %w", err)
		}

		if outputFormat == "json" || outputFormat == "yaml" {
			return formatOutput(cmd.OutOrStdout(), map[string]any{
				"status":  "unregistered",
				"card_id": args[0],
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Unregistered card %s.\n", args[0])
		return nil
	},
}
