package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline counts and outreach rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Collector.Collect(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Total buildings\t%d\n", snap.BuildingsTotal)
		fmt.Fprintf(w, "  pending\t%d\n", snap.Pending)
		fmt.Fprintf(w, "  approved\t%d\n", snap.Approved)
		fmt.Fprintf(w, "  contact_resolving\t%d\n", snap.ContactResolving)
		fmt.Fprintf(w, "  contact_found\t%d\n", snap.ContactFound)
		fmt.Fprintf(w, "  contact_failed\t%d\n", snap.ContactFailed)
		fmt.Fprintf(w, "  email_sent\t%d\n", snap.EmailSent)
		fmt.Fprintf(w, "  reply_received\t%d\n", snap.ReplyReceived)
		fmt.Fprintf(w, "  errored\t%d\n", snap.Errored)
		fmt.Fprintf(w, "Awaiting reply\t%d\n", snap.AwaitingReply)
		fmt.Fprintf(w, "Reply rate\t%.2f\n", snap.ReplyRate)
		fmt.Fprintf(w, "Error rate\t%.2f\n", snap.ErrorRate)
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
