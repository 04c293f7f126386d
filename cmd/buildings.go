package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	buildingsState string
	buildingsLimit int
)

var buildingsCmd = &cobra.Command{
	Use:   "buildings",
	Short: "Inspect and manage discovered buildings",
}

var buildingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List buildings, optionally filtered by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.BuildingFilter{Limit: buildingsLimit}
		if buildingsState != "" {
			filter.States = []model.BuildingState{model.BuildingState(buildingsState)}
		}

		buildings, err := env.Store.ListBuildings(cmd.Context(), filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tADDRESS\tCONTACT")
		for _, b := range buildings {
			contact := "-"
			if b.Contact != nil {
				contact = fmt.Sprintf("%s (%.2f)", b.Contact.Email, b.Contact.Confidence)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.State, b.Address, contact)
		}
		return w.Flush()
	},
}

var buildingsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a building as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := env.Store.GetBuilding(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var buildingsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending building and start outreach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := env.Coord.Approve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("approved %s (%s), outreach started\n", b.ID, b.Address)

		// The CLI is one-shot: wait for the in-flight work before the
		// deferred shutdown tears the coordinator down.
		return env.Coord.Shutdown(cmd.Context())
	},
}

var buildingsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry an errored building from its failed stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := env.Coord.Retry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("retrying %s (%s)\n", b.ID, b.Address)
		return env.Coord.Shutdown(cmd.Context())
	},
}

var buildingsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a building and abandon any in-flight outreach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Coord.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	buildingsListCmd.Flags().StringVar(&buildingsState, "state", "", "filter by pipeline state")
	buildingsListCmd.Flags().IntVar(&buildingsLimit, "limit", 100, "maximum rows to return")

	buildingsCmd.AddCommand(buildingsListCmd)
	buildingsCmd.AddCommand(buildingsShowCmd)
	buildingsCmd.AddCommand(buildingsApproveCmd)
	buildingsCmd.AddCommand(buildingsRetryCmd)
	buildingsCmd.AddCommand(buildingsDeleteCmd)
	rootCmd.AddCommand(buildingsCmd)
}
