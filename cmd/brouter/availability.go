package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/bugrouter/internal/cli"
)

var releaseCmd = &cobra.Command{
	Use:   "release <author>",
	Short: "Return one unit of an engineer's capacity after a bug is closed",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

var availabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Inspect and change engineer availability",
	Long: `Inspect and change engineer availability.

Workload and settings are kept in the routing database by default, so
they carry over between commands. Configure availability.backend: redis to
share them between hosts; the memory backend forgets them when a command
exits.`,
}

var availabilitySetCmd = &cobra.Command{
	Use:   "set <author>",
	Short: "Mark an engineer away or change their capacity",
	Long: `Mark an engineer away or change their capacity.

Examples:
  brouter availability set alice --away
  brouter availability set alice --away=false --capacity 3`,
	Args: cobra.ExactArgs(1),
	RunE: runAvailabilitySet,
}

var availabilityStatusCmd = &cobra.Command{
	Use:   "status [author...]",
	Short: "Show engineers' workload and status",
	Long: `Show engineers' workload and status. Without arguments every engineer
listed in the configuration is shown.`,
	RunE: runAvailabilityStatus,
}

func init() {
	availabilitySetCmd.Flags().Bool("away", false, "mark the engineer away")
	availabilitySetCmd.Flags().Int("capacity", 0, "maximum open assignments")

	availabilityCmd.AddCommand(availabilitySetCmd)
	availabilityCmd.AddCommand(availabilityStatusCmd)
}

// openTracker connects the availability backend. No repository is needed.
func openTracker(cmd *cobra.Command) (*cli.Engine, error) {
	eng, err := cli.Open(cfg, "", "", logger)
	if err != nil {
		return nil, err
	}
	if _, err := eng.Tracker(cmd.Context()); err != nil {
		eng.Close()
		return nil, fmt.Errorf("connect availability: %w", err)
	}
	return eng, nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := openTracker(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	tracker, _ := eng.Tracker(ctx)
	if err := tracker.Release(ctx, args[0]); err != nil {
		return err
	}
	status, err := tracker.StatusOf(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Released %s: %d/%d open (%s)\n", args[0], status.OpenAssignmentCount, status.MaxCapacity, status.Status)
	return nil
}

func runAvailabilitySet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	author := args[0]

	awayChanged := cmd.Flags().Changed("away")
	capacityChanged := cmd.Flags().Changed("capacity")
	if !awayChanged && !capacityChanged {
		return fmt.Errorf("nothing to change: pass --away and/or --capacity")
	}

	eng, err := openTracker(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()
	tracker, _ := eng.Tracker(ctx)

	if capacityChanged {
		capacity, _ := cmd.Flags().GetInt("capacity")
		if err := tracker.SetCapacity(ctx, author, capacity); err != nil {
			return err
		}
	}
	if awayChanged {
		away, _ := cmd.Flags().GetBool("away")
		if err := tracker.SetAway(ctx, author, away); err != nil {
			return err
		}
	}

	status, err := tracker.StatusOf(ctx, author)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s, %d/%d open\n", author, status.Status, status.OpenAssignmentCount, status.MaxCapacity)
	if cfg.Availability.Backend == "memory" {
		logger.Warn("In-process availability: this change is not kept after the command exits")
	}
	return nil
}

func runAvailabilityStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	authors := args
	if len(authors) == 0 {
		for _, e := range cfg.Availability.Engineers {
			authors = append(authors, e.ID)
		}
	}
	if len(authors) == 0 {
		return fmt.Errorf("no engineers configured; name authors to check")
	}

	eng, err := openTracker(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()
	tracker, _ := eng.Tracker(ctx)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AUTHOR\tSTATUS\tOPEN\tCAPACITY")
	for _, author := range authors {
		status, err := tracker.StatusOf(ctx, author)
		if err != nil {
			return fmt.Errorf("status of %s: %w", author, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", author, status.Status, status.OpenAssignmentCount, status.MaxCapacity)
	}
	return tw.Flush()
}
