package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/mend/display"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the mend engine tables",
	Long: `db — Inspect the violation, repair and audit tables

Examples:
  mend db stats                   # Violation, repair and audit counts
  mend db stats --audit 10        # Also list the last 10 applied fixes`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine table statistics",
	Long:  "Display counts of violations, violation cells, candidate fixes, audit records and violated attributes",
	RunE:  runDbStats,
}

var statsAuditFlag int

// auditValueWidth bounds old/new values in the audit table.
const auditValueWidth = 40

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().IntVar(&statsAuditFlag, "audit", 0, "Number of most recent audit records to list")
	dbStatsCmd.Flags().BoolP("json", "j", false, "Output statistics as JSON")
}

func runDbStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, database, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to query statistics: %w", err)
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), stats)
	}

	pterm.DefaultSection.Println("Database Statistics")
	data := pterm.TableData{
		{"Database", cfg.DatabaseTarget()},
		{"Violations", pterm.Sprint(stats.Violations)},
		{"Violation cells", pterm.Sprint(stats.ViolationCells)},
		{"Candidate fixes", pterm.Sprint(stats.Repairs)},
		{"Audit records", pterm.Sprint(stats.AuditRecords)},
		{"Violated attributes", pterm.Sprint(stats.ViolatedColumns)},
	}
	if err := pterm.DefaultTable.WithData(data).Render(); err != nil {
		return err
	}

	if statsAuditFlag <= 0 {
		return nil
	}
	log, err := st.AuditLog(ctx)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(log) > statsAuditFlag {
		log = log[len(log)-statsAuditFlag:]
	}

	pterm.DefaultSection.Printfln("Recent fixes (last %d)", len(log))
	audit := pterm.TableData{{"ID", "Time", "Cell", "Old", "New"}}
	for _, rec := range log {
		audit = append(audit, []string{
			pterm.Sprint(rec.ID),
			rec.Time.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%s.%s[%d]", rec.Table, rec.Attribute, rec.TID),
			display.Truncate(rec.OldValue, auditValueWidth),
			display.Truncate(rec.NewValue, auditValueWidth),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(audit).Render()
}
