package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	natsclient "github.com/telhawk-systems/edi-stack/common/messaging/nats"

	"github.com/telhawk-systems/edi-stack/cli/internal/seeder"
	"github.com/telhawk-systems/edi-stack/cli/pkg/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Enqueue generated outgoing messages",
	Long: `Generate random outgoing messages and enqueue them through NATS,
the way upstream calculation services do. Useful to fill development queues.`,
	Example: `  edictl seed --receivers 5790000701414 --count 200
  edictl seed --receivers 5790000701414,5790000000005 --types NotifyValidatedMeasureData`,
	RunE: func(cmd *cobra.Command, args []string) error {
		receivers, _ := cmd.Flags().GetStringSlice("receivers")
		types, _ := cmd.Flags().GetStringSlice("types")
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		seed, _ := cmd.Flags().GetInt64("seed")
		natsURL, _ := cmd.Flags().GetString("nats-url")

		if len(receivers) == 0 {
			return fmt.Errorf("at least one receiver is required")
		}
		if natsURL == "" {
			profile, _ := cmd.Flags().GetString("profile")
			natsURL = cfg.NATSURL(profile)
		}

		ncfg := natsclient.DefaultConfig()
		ncfg.URL = natsURL
		ncfg.Name = "edictl-seed"
		ncfg.MaxReconnects = 5
		nc, err := natsclient.NewClient(ncfg)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
		}
		defer nc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		start := time.Now()
		runner := seeder.NewRunner(nc, seeder.NewGenerator(receivers, seed))
		summary, err := runner.Run(ctx, seeder.Options{
			Count:         count,
			DocumentTypes: types,
			Interval:      interval,
		})
		if summary != nil {
			output.Success("Enqueued %d message(s) in %s", summary.Enqueued, time.Since(start).Round(time.Millisecond))
			if summary.Duplicates > 0 {
				output.Info("%d duplicate(s) ignored", summary.Duplicates)
			}
			if summary.Failed > 0 {
				output.Warn("%d message(s) failed", summary.Failed)
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringSlice("receivers", nil, "receiver actor numbers")
	seedCmd.Flags().StringSlice("types", nil, "document types (default: all notify types)")
	seedCmd.Flags().IntP("count", "n", 100, "number of messages")
	seedCmd.Flags().Duration("interval", 0, "delay between messages")
	seedCmd.Flags().Int64("seed", 0, "random seed (0 picks one)")
	seedCmd.Flags().String("nats-url", "", "NATS URL (default: from the profile)")
}
