package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edi-stack/cli/pkg/output"
)

var sendCmd = &cobra.Command{
	Use:   "send [document-type] [file]",
	Short: "Submit an incoming document",
	Long:  "Submit a CIM XML or JSON request document to the gateway. The content type follows the file extension unless --content-type is set.",
	Example: `  edictl send RequestAggregatedMeasureData request.xml
  edictl send RequestWholesaleSettlement request.json --output json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		documentType, path := args[0], args[1]

		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}

		contentType, _ := cmd.Flags().GetString("content-type")
		if contentType == "" {
			contentType = contentTypeFor(path)
		}

		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		resp, err := c.Send(documentType, contentType, body)
		if err != nil {
			return fmt.Errorf("failed to send document: %w", err)
		}

		if jsonOutput(cmd) {
			return output.JSON(resp)
		}
		if resp.Success {
			output.Success("Document %s accepted", resp.MessageID)
			return nil
		}

		output.Error("Document %s rejected", resp.MessageID)
		table := output.NewTable([]string{"Code", "Message", "Target"})
		for _, e := range resp.Errors {
			table.AddRow([]string{e.Code, e.Message, e.Target})
		}
		table.Render()
		return fmt.Errorf("document rejected with %d error(s)", len(resp.Errors))
	},
}

func contentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "application/json"
	}
	return "application/xml"
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("content-type", "", "content type (default: from the file extension)")
}
