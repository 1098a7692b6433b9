package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	suggestTop int
	suggestETA string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <vessel-id>",
	Short: "Rank feasible berth windows for a vessel",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

func init() {
	suggestCmd.Flags().IntVarP(&suggestTop, "top", "n", 0, "number of candidates (0 uses the configured default)")
	suggestCmd.Flags().StringVar(&suggestETA, "eta", "", "preferred arrival (RFC3339, defaults to the vessel's ETA)")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	svc, err := oneShot()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	var eta time.Time
	if suggestETA != "" {
		eta, err = time.Parse(time.RFC3339, suggestETA)
		if err != nil {
			return fmt.Errorf("parse eta: %w", err)
		}
	}

	res, err := svc.Engine.GetBerthSuggestions(args[0], eta, suggestTop)
	if err != nil {
		return err
	}
	if len(res.Candidates) == 0 {
		fmt.Println("no feasible berth:")
		for _, r := range res.Reasons {
			fmt.Printf("  %s\n", r)
		}
		return nil
	}
	for i, c := range res.Candidates {
		fmt.Printf("%d. berth %-8s %s  score %.3f\n", i+1, c.Berth.ID, c.Window, c.Score)
		fmt.Printf("   %s\n", c.Rationale)
	}
	return nil
}
