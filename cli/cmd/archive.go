package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edi-stack/cli/internal/client"
	"github.com/telhawk-systems/edi-stack/cli/pkg/output"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Message archive commands",
}

var archiveSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search archived documents",
	Example: `  edictl archive search --message-id 0d5a...
  edictl archive search --document-type NotifyAggregatedMeasureData --last 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := client.ArchiveQuery{}
		q.MessageID, _ = cmd.Flags().GetString("message-id")
		q.SenderNumber, _ = cmd.Flags().GetString("sender")
		q.ReceiverNumber, _ = cmd.Flags().GetString("receiver")
		q.DocumentType, _ = cmd.Flags().GetString("document-type")
		q.Limit, _ = cmd.Flags().GetInt("limit")

		if last, _ := cmd.Flags().GetDuration("last"); last > 0 {
			q.From = time.Now().Add(-last)
		}

		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		messages, err := c.SearchArchive(q)
		if err != nil {
			return fmt.Errorf("failed to search archive: %w", err)
		}

		if jsonOutput(cmd) {
			return output.JSON(messages)
		}
		if len(messages) == 0 {
			output.Info("No archived messages found")
			return nil
		}

		table := output.NewTable([]string{"Archived", "Direction", "Message ID", "Document", "Sender", "Receiver", "Format"})
		for _, m := range messages {
			table.AddRow([]string{
				m.ArchivedAt.Format(time.RFC3339),
				m.Direction,
				m.MessageID,
				m.DocumentType,
				m.SenderNumber,
				m.ReceiverNumber,
				m.Format,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveSearchCmd)

	archiveSearchCmd.Flags().String("message-id", "", "message id")
	archiveSearchCmd.Flags().String("sender", "", "sender actor number")
	archiveSearchCmd.Flags().String("receiver", "", "receiver actor number")
	archiveSearchCmd.Flags().String("document-type", "", "document type name")
	archiveSearchCmd.Flags().Duration("last", 0, "only messages archived within this duration")
	archiveSearchCmd.Flags().Int("limit", 50, "maximum number of results")
}
