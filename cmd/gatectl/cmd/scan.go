package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/avvvet/gate-services/internal/comm"
	"github.com/avvvet/gate-services/internal/nats"
)

var (
	passFmt = color.New(color.FgGreen, color.Bold).SprintFunc()
	denyFmt = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Duration("timeout", 5*time.Second, "How long to wait for the gateway reply")
}

var scanCmd = &cobra.Command{
	Use:   "scan <enter|exit> <card>",
	Short: "Simulate a reader scan over NATS",
	Long: `Publish a scan on the inbound topic with a fresh reply topic and print
the gateway decision.

Examples:
  gatectl scan enter "[12, 0, 255, 7, 3]"
  gatectl scan exit "[12, 0, 255, 7, 3]" --timeout 2s`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"enter", "exit"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, ok := comm.ParseDirection(args[0])
		if !ok {
			return fmt.Errorf("direction must be enter or exit, got %q", args[0])
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		n, err := nats.Connect("gatectl", cfg.Nats)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer n.Conn.Close()

		env := comm.Envelope{
			ReplyTopic: "gatectl.reply." + uuid.New().String(),
			Direction:  dir,
			CardID:     args[1],
		}
		reply, err := scan(n.Conn, cfg.Gate.InboundTopic, env, timeout)
		if err != nil {
			return err
		}
		return printReply(cmd.OutOrStdout(), env, reply)
	},
}

// scan publishes env and waits for the gateway's answer on its reply topic.
func scan(conn *natsgo.Conn, inbound string, env comm.Envelope, timeout time.Duration) (comm.Reply, error) {
	sub, err := conn.SubscribeSync(env.ReplyTopic)
	if err != nil {
		return comm.Reply{}, fmt.Errorf("subscribe %s: %w", env.ReplyTopic, err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	// make sure the server knows the subscription before the gateway answers
	if err := conn.Flush(); err != nil {
		return comm.Reply{}, fmt.Errorf("flush: %w", err)
	}

	if err := conn.Publish(inbound, env.Encode()); err != nil {
		return comm.Reply{}, fmt.Errorf("publish to %s: %w", inbound, err)
	}

	msg, err := sub.NextMsg(timeout)
	if errors.Is(err, natsgo.ErrTimeout) {
		return comm.Reply{}, fmt.Errorf("no reply within %s (malformed scan or store unavailable)", timeout)
	}
	if err != nil {
		return comm.Reply{}, err
	}
	return comm.ParseReply(msg.Data)
}

func printReply(w io.Writer, env comm.Envelope, reply comm.Reply) error {
	if outputFormat != "table" {
		data := map[string]any{
			"card_id":   env.CardID,
			"direction": env.Direction.String(),
			"granted":   reply.Granted,
			"reply":     reply.String(),
		}
		if reply.HasDuration {
			data["duration_s"] = reply.Seconds()
		}
		return formatOutput(w, data)
	}

	verdict := denyFmt("NO PASS")
	if reply.Granted {
		verdict = passFmt("PASS")
	}
	fmt.Fprintf(w, "%s %s %s", verdict, env.Direction, env.CardID)
	if reply.HasDuration {
		fmt.Fprintf(w, " %s", dimFmt("after "+reply.Duration.String()))
	}
	fmt.Fprintln(w)
	return nil
}
