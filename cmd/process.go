package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var processBbox []float64

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Discover residential buildings inside a bounding box",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(processBbox) != 4 {
			return eris.New("--bbox requires exactly four values: north,south,east,west")
		}

		area := model.AreaRequest{
			North: processBbox[0],
			South: processBbox[1],
			East:  processBbox[2],
			West:  processBbox[3],
		}
		if err := area.Validate(); err != nil {
			return err
		}

		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Coord.ProcessAreas(cmd.Context(), []model.AreaRequest{area})
		if err != nil {
			return err
		}

		fmt.Printf("Candidates discovered:  %d\n", result.Discovered)
		fmt.Printf("Buildings created:      %d\n", result.Created)
		fmt.Printf("Buildings updated:      %d\n", result.Updated)
		fmt.Printf("Skipped unparseable:    %d\n", result.SkippedUnparseable)
		fmt.Printf("Skipped nonresidential: %d\n", result.SkippedNonResidential)
		fmt.Printf("Skipped duplicates:     %d\n", result.SkippedDuplicate)
		if len(result.Errors) > 0 {
			fmt.Printf("Errors:                 %d\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("  - %v\n", e)
			}
		}
		return nil
	},
}

func init() {
	processCmd.Flags().Float64SliceVar(&processBbox, "bbox", nil, "bounding box as north,south,east,west (required)")
	_ = processCmd.MarkFlagRequired("bbox")
	rootCmd.AddCommand(processCmd)
}
