package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edi-stack/cli/pkg/output"
)

var activityOrder = []string{"received", "accepted", "rejected", "peeked", "dequeued"}

var statsCmd = &cobra.Command{
	Use:   "stats [actor-number]",
	Short: "Show actor activity statistics",
	Long:  "Show request counts recorded by the gateway. Without an actor number the caller's own statistics are shown; other actors require a platform operator token.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var actorNumber string
		if len(args) == 1 {
			actorNumber = args[0]
		}

		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		stats, err := c.ActorStats(actorNumber)
		if err != nil {
			return fmt.Errorf("failed to get actor statistics: %w", err)
		}

		if jsonOutput(cmd) {
			return output.JSON(stats)
		}

		output.Info("Actor %s", stats.ActorNumber)
		if stats.LastSeenAt != nil {
			output.Info("Last seen %s from %s", stats.LastSeenAt.Format(time.RFC3339), stats.LastSeenIP)
		} else {
			output.Info("No recorded activity")
		}

		table := output.NewTable([]string{"Activity", "Total"})
		for _, activity := range activityOrder {
			table.AddRow([]string{activity, strconv.FormatInt(stats.Totals[activity], 10)})
		}
		table.Render()

		output.Info("Requests: %d in the last hour, %d in the last 24h, %d unique IPs today",
			stats.RequestsLastHour, stats.RequestsLast24h, stats.UniqueIPsToday)

		instances := make([]string, 0, len(stats.Instances))
		for instance := range stats.Instances {
			instances = append(instances, instance)
		}
		sort.Strings(instances)
		for _, instance := range instances {
			output.Info("Served by %s (last %s)", instance, stats.Instances[instance])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
