package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sofragment/fragment/internal/config"
)

var (
	cfgFile    string
	dataDir    string
	appVersion string // set in Execute, reported by serve and the MCP server
	initErr    error  // a malformed config file, reported by loadConfig
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fragment",
		Short: "Portfolio API with accounts, API keys and code screenshots",
		Long: `fragment serves the portfolio backend: user accounts with JWT sessions,
per-user API keys, and the codeshot tool that renders source code into
PNG, JPEG or SVG images with headless Chrome.

The same binary manages users and keys from the command line and exposes
the codeshot tools to AI agents over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./fragment.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.fragment)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newCodeshotCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	v := viper.GetViper()
	initErr = config.Init(v, cfgFile)
	if dataDir != "" {
		v.Set("data_dir", dataDir)
	}
}
