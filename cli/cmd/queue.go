package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edi-stack/cli/internal/client"
	"github.com/telhawk-systems/edi-stack/cli/pkg/output"
)

var peekCmd = &cobra.Command{
	Use:   "peek [category]",
	Short: "Show the next outgoing bundle",
	Long:  "Peek the oldest bundle in a queue category (aggregations, measuredata, all). Peeking does not remove the bundle.",
	Example: `  edictl peek aggregations
  edictl peek all --format json --role GridOperator
  edictl peek measuredata --save bundle.xml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := "all"
		if len(args) > 0 {
			category = args[0]
		}
		format, _ := cmd.Flags().GetString("format")
		savePath, _ := cmd.Flags().GetString("save")

		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		doc, err := c.Peek(category, format, actingRole(cmd))
		if errors.Is(err, client.ErrNoContent) {
			output.Info("No bundles ready in %s", category)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to peek: %w", err)
		}

		if savePath != "" {
			if err := os.WriteFile(savePath, doc.Document, 0600); err != nil {
				return fmt.Errorf("failed to save document: %w", err)
			}
			output.Success("Bundle %s saved to %s", doc.BundleID, savePath)
			output.Info("Dequeue with: edictl dequeue %s", doc.BundleID)
			return nil
		}

		fmt.Fprintf(output.Stderr, "Bundle: %s\nMessage: %s\n\n", doc.BundleID, doc.MessageID)
		output.Raw(doc.Document)
		return nil
	},
}

var dequeueCmd = &cobra.Command{
	Use:   "dequeue [bundle-id]",
	Short: "Acknowledge a peeked bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Dequeue(args[0], actingRole(cmd)); err != nil {
			return fmt.Errorf("failed to dequeue: %w", err)
		}
		output.Success("Bundle %s dequeued", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(dequeueCmd)

	peekCmd.Flags().StringP("format", "f", "xml", "document format: xml, ebix, json")
	peekCmd.Flags().String("save", "", "write the document to a file instead of stdout")
	peekCmd.Flags().String("role", "", "market role to act as (name or code)")
	dequeueCmd.Flags().String("role", "", "market role to act as (name or code)")
}
