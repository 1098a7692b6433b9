package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Solve all movable vessel calls over the planning horizon",
	RunE:  runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	svc, err := oneShot()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	out, err := svc.Engine.OptimizeGlobal(context.Background())
	if err != nil {
		return err
	}
	for _, sc := range out.Result.Assignments {
		fmt.Printf("%-12s -> %-8s %s\n", sc.VesselID, sc.BerthID, sc.Window)
	}
	for _, vid := range out.Result.Unassigned {
		fmt.Printf("%-12s unassigned\n", vid)
	}
	fmt.Printf("%s: %d assigned, %d unassigned, objective %.3f (%s, v%d)\n",
		out.Run.Outcome, out.Run.Assigned, out.Run.Unassigned, out.Run.Objective,
		out.Run.Duration.Round(time.Millisecond), out.Version)
	return nil
}
