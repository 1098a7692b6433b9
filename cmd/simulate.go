package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quayside/berthd/core/reopt"
	"github.com/quayside/berthd/core/whatif"
)

var (
	simCancel []string
	simETA    []string
	simLose   []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Project a what-if scenario without committing",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringArrayVar(&simCancel, "cancel", nil, "cancel a vessel's call (repeatable)")
	simulateCmd.Flags().StringArrayVar(&simETA, "eta", nil, "vessel=RFC3339 arrival change (repeatable)")
	simulateCmd.Flags().StringArrayVar(&simLose, "lose-resource", nil, "mark a resource unit unavailable (repeatable)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc, err := buildScenario()
	if err != nil {
		return err
	}

	svc, err := oneShot()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	out, err := svc.Engine.Simulate(context.Background(), sc)
	if err != nil {
		return err
	}
	if len(out.Moves) == 0 {
		fmt.Println("no schedule changes")
		return nil
	}
	for _, m := range out.Moves {
		switch {
		case m.Cancelled:
			fmt.Printf("%-12s cancelled\n", m.VesselID)
		case m.FromBerth == "":
			fmt.Printf("%-12s new call   %-8s [%s, %s)\n", m.VesselID, m.ToBerth,
				m.To.Start.Format(time.RFC3339), m.To.End.Format(time.RFC3339))
		default:
			fmt.Printf("%-12s %-8s %s -> %-8s %s\n", m.VesselID,
				m.FromBerth, m.From.Start.Format(time.RFC3339),
				m.ToBerth, m.To.Start.Format(time.RFC3339))
		}
	}
	fmt.Printf("%d solves, %d conflicts opened, %d closed\n", len(out.Runs), len(out.Opened), len(out.Closed))
	return nil
}

func buildScenario() (whatif.Scenario, error) {
	var sc whatif.Scenario
	for _, vid := range simCancel {
		sc.Triggers = append(sc.Triggers, reopt.Trigger{VesselID: vid, Kind: reopt.TriggerCancellation})
	}
	for _, spec := range simETA {
		vid, raw, ok := strings.Cut(spec, "=")
		if !ok {
			return sc, fmt.Errorf("--eta wants vessel=RFC3339, got %q", spec)
		}
		eta, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return sc, fmt.Errorf("parse eta for %s: %w", vid, err)
		}
		sc.Triggers = append(sc.Triggers, reopt.Trigger{VesselID: vid, Kind: reopt.TriggerETAChange, NewETA: eta})
	}
	for _, rid := range simLose {
		sc.Triggers = append(sc.Triggers, reopt.Trigger{ResourceID: rid, Kind: reopt.TriggerResourceLoss})
	}
	if len(sc.Triggers) == 0 {
		return sc, fmt.Errorf("simulate needs at least one of --cancel, --eta, --lose-resource")
	}
	return sc, nil
}
