package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/cmd/mend/commands"
	"github.com/teranos/mend/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "mend - guided repair of integrity-constraint violations",
	Long: `mend - guided data repair.

mend detects violations of data-quality rules in a relational table, proposes
repairs ranked by how much an answer would teach, asks an oracle about each
proposal and applies the accepted ones while keeping the violation tables
consistent.

Available commands:
  am      - Show and validate configuration
  detect  - Run full detection and seed the violation tables
  repair  - Run a guided repair session
  db      - Inspect the engine tables
  version - Show version information

Examples:
  mend detect --rules rules.toml     # Detect violations
  mend repair --scoring entropy      # Guided repair, entropy ranking
  mend db stats                      # Violation and audit counts`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if err := am.UseFile(path); err != nil {
				return err
			}
		}

		// 'am show' output must stay machine-readable
		if cmd.Name() == "show" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file instead of the mend.toml search path")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.DetectCmd)
	rootCmd.AddCommand(commands.RepairCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
