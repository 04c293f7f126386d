package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reply sweep across sent outreach emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Coord.Reconcile(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Threads checked: %d\n", result.ThreadsChecked)
		fmt.Printf("Replies found:   %d\n", result.RepliesFound)
		if result.Errors > 0 {
			fmt.Printf("Errors:          %d\n", result.Errors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
