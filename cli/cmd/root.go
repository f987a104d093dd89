package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edi-stack/cli/internal/client"
	"github.com/telhawk-systems/edi-stack/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "edictl",
	Short: "EDI gateway CLI",
	Long: `edictl is the command-line interface for the EDI market-document gateway.

Submit incoming documents, peek and dequeue outgoing bundles, trigger
bundling, search the message archive and seed development queues.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.edictl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("api-url", "", "gateway URL (overrides the profile)")
	rootCmd.PersistentFlags().String("token", "", "actor token (overrides the profile)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// apiClient builds a gateway client from flags, falling back to the profile.
func apiClient(cmd *cobra.Command) (*client.EDIClient, error) {
	profile, _ := cmd.Flags().GetString("profile")
	apiURL, _ := cmd.Flags().GetString("api-url")
	tok, _ := cmd.Flags().GetString("token")

	if apiURL == "" {
		apiURL = cfg.APIURL(profile)
	}
	if tok == "" {
		p, err := cfg.GetProfile(profile)
		if err != nil || p.Token == "" {
			return nil, fmt.Errorf("no token: use --token or save one with 'edictl token create --save'")
		}
		tok = p.Token
	}
	return client.NewEDIClient(apiURL, tok), nil
}

// actingRole returns the --role flag, or the profile's role.
func actingRole(cmd *cobra.Command) string {
	if role, _ := cmd.Flags().GetString("role"); role != "" {
		return role
	}
	profile, _ := cmd.Flags().GetString("profile")
	if p, err := cfg.GetProfile(profile); err == nil {
		return p.Role
	}
	return ""
}

func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}
