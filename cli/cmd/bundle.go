package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edi-stack/cli/pkg/output"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Run bundling now",
	Long:  "Trigger a bundling run on the gateway. Requires a platform operator token.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		report, err := c.RunBundling()
		if err != nil {
			return fmt.Errorf("failed to run bundling: %w", err)
		}

		if jsonOutput(cmd) {
			return output.JSON(report)
		}
		if report.Skipped {
			output.Warn("Another bundling run is in progress")
			return nil
		}
		output.Success("Created %d bundle(s) from %d message(s)", report.BundlesCreated, report.MessagesBundled)
		if report.MessagesDeferred > 0 {
			output.Info("%d message(s) deferred until their group fills or times out", report.MessagesDeferred)
		}
		if report.Conflicts > 0 {
			output.Warn("%d message(s) were bundled by a concurrent run", report.Conflicts)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bundleCmd)
}
