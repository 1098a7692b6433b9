package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resolveID string

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect schedule conflicts in the current state",
	RunE:  runConflicts,
}

func init() {
	conflictsCmd.Flags().StringVar(&resolveID, "resolve", "", "auto-resolve the given conflict after detection")
	rootCmd.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	svc, err := oneShot()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	open, err := svc.Engine.DetectConflicts(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		fmt.Println("no open conflicts")
		return nil
	}
	for _, c := range open {
		auto := ""
		if c.AutoResolvable {
			auto = " [auto-resolvable]"
		}
		fmt.Printf("%s  %-22s severity %d%s\n    %s\n", c.ID, c.Kind, c.Severity, auto, c.Detail)
	}

	if resolveID != "" {
		res, err := svc.Engine.ResolveConflict(ctx, resolveID, "auto")
		if err != nil {
			return err
		}
		if res.Resolved {
			fmt.Printf("resolved %s: %d calls reassigned\n", resolveID, res.Outcome.Run.Assigned)
		} else {
			fmt.Printf("could not resolve %s\n", resolveID)
		}
	}
	return nil
}
