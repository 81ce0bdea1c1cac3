package commands

import (
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/mend/consistency"
	"github.com/teranos/mend/logger"
)

// DetectCmd represents the detect command
var DetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect rule violations and seed the repair tables",
	Long: `Run every rule over its full tables and persist the violations found,
together with the candidate fixes each rule proposes.

Examples:
  mend detect                          # Use rules.path from mend.toml
  mend detect --rules rules.yaml       # Use a specific rule file
  mend detect --detect-only            # Record violations without candidate fixes`,
	RunE: runDetect,
}

var (
	detectRulesFlag string
	detectOnlyFlag  bool
)

func init() {
	DetectCmd.Flags().StringVar(&detectRulesFlag, "rules", "", "Rule file (.toml, .yaml); overrides rules.path")
	DetectCmd.Flags().BoolVar(&detectOnlyFlag, "detect-only", false, "Persist violations without generating candidate fixes")
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rules, err := loadRules(cfg, detectRulesFlag)
	if err != nil {
		return err
	}
	st, database, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	newManager := consistency.NewManager
	if detectOnlyFlag {
		newManager = consistency.NewUpdateManager
	}
	manager, err := newManager(st, rules, cfg.GetBatchSize(), logger.ComponentLogger("detect"))
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Detecting violations")
	d, err := manager.DetectAll(ctx)
	if err != nil {
		spinner.Fail("Detection failed")
		return err
	}
	spinner.Success("Detection complete")

	ids := make([]string, 0, len(d.ByRule))
	for id := range d.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data := pterm.TableData{{"Rule", "Violations"}}
	for _, id := range ids {
		data = append(data, []string{id, pterm.Sprint(d.ByRule[id])})
	}
	if len(ids) > 0 {
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}
	pterm.Printf("%s %d violations, %d candidate fixes in %s\n",
		pterm.LightGreen("✓"), d.Violations, d.Fixes, d.Elapsed.Round(1e6))
	return nil
}
