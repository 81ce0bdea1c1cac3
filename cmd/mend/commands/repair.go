package commands

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/guided"
	"github.com/teranos/mend/logger"
)

// RepairCmd represents the repair command
var RepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Run a guided repair session",
	Long: `Repeatedly pick the violated column whose candidate fixes are worth the
most, ask the oracle about its best fix and apply accepted fixes until no
candidates remain. Run 'mend detect' first to seed the violation tables.

Oracles:
  ground_truth - accept a fix whose value matches the clean reference table
  dirty_cell   - accept any fix on a cell that differs from the clean table
  classifier   - accept what a classifier trained on earlier sessions predicts

Every session records its oracle answers; the classifier oracle and entropy
scoring train on the answers recorded for the source table.

Examples:
  mend repair                                   # Settings from mend.toml
  mend repair --scoring entropy                 # Rank by classifier uncertainty
  mend repair --oracle classifier               # Replay a trained classifier
  mend repair --max-interactions 50             # Stop after 50 oracle calls
  mend repair --metrics-file mend.prom          # Export session metrics`,
	RunE: runRepair,
}

var (
	repairRulesFlag   string
	repairScoringFlag string
	repairOracleFlag  string
	repairMaxFlag     int
	repairMetricsFlag string
)

func init() {
	RepairCmd.Flags().StringVar(&repairRulesFlag, "rules", "", "Rule file (.toml, .yaml); overrides rules.path")
	RepairCmd.Flags().StringVar(&repairScoringFlag, "scoring", "", "Candidate scoring: voi or entropy; overrides repair.scoring")
	RepairCmd.Flags().StringVar(&repairOracleFlag, "oracle", "", "Oracle: ground_truth, dirty_cell or classifier; overrides repair.oracle")
	RepairCmd.Flags().IntVar(&repairMaxFlag, "max-interactions", -1, "Stop after this many oracle calls (0 = unbounded); overrides repair.max_interactions")
	RepairCmd.Flags().StringVar(&repairMetricsFlag, "metrics-file", "", "Write prometheus metrics to this textfile; overrides metrics.file")
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx := logger.WithComponent(cmd.Context(), "repair")
	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := *loaded
	if repairScoringFlag != "" {
		cfg.Repair.Scoring = repairScoringFlag
	}
	if repairOracleFlag != "" {
		cfg.Repair.Oracle = repairOracleFlag
	}
	if repairMaxFlag >= 0 {
		cfg.Repair.MaxInteractions = repairMaxFlag
	}
	if repairMetricsFlag != "" {
		cfg.Metrics.File = repairMetricsFlag
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid flags")
	}

	rules, err := loadRules(&cfg, repairRulesFlag)
	if err != nil {
		return err
	}
	st, database, err := openStore(ctx, &cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	registry := prometheus.NewRegistry()
	session, err := guided.Assemble(ctx, st, rules, &cfg, registry, logger.ComponentLogger("repair"))
	if err != nil {
		return err
	}

	pterm.Info.Printfln("Session %s", session.ID())
	res, runErr := session.Run(ctx)

	hitRate := 0.0
	if res.Interactions > 0 {
		hitRate = float64(res.Hits) / float64(res.Interactions)
	}
	summary := pterm.TableData{
		{"Interactions", pterm.Sprint(res.Interactions)},
		{"Accepted", pterm.Sprint(res.Hits)},
		{"Hit rate", pterm.Sprintf("%.2f", hitRate)},
		{"Skipped", pterm.Sprint(res.Skipped)},
		{"Applied fixes", pterm.Sprint(len(res.Applied))},
		{"Elapsed", res.Elapsed.Round(1e6).String()},
	}
	if err := pterm.DefaultTable.WithData(summary).Render(); err != nil {
		return err
	}
	if res.Truncated {
		pterm.Warning.Printfln("Stopped after %d interactions", res.Interactions)
	}

	if cfg.Metrics.File != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.File, registry); err != nil {
			return errors.Wrapf(err, "failed to write metrics to %s", cfg.Metrics.File)
		}
		logger.Logger.Infow("Wrote metrics", logger.FieldFile, cfg.Metrics.File)
	}

	if runErr != nil {
		return errors.Wrap(runErr, "repair session failed")
	}
	pterm.Success.Println("Repair session complete")
	return nil
}
