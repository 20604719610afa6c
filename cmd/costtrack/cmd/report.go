package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"costtrack/pkg/config"
	"costtrack/pkg/persistence"
)

var (
	reportFromDate string
	reportToDate   string
	reportLimit    int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Spending reports from the maintained aggregates",
}

var reportDailyCmd = &cobra.Command{
	Use:   "daily [date]",
	Short: "Show one day's spending summary (default: today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReportDaily,
}

var reportRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Show daily summaries over a date range",
	Args:  cobra.NoArgs,
	RunE:  runReportRange,
}

var reportTopModelsCmd = &cobra.Command{
	Use:   "top-models",
	Short: "Rank models by spend over a date range",
	Args:  cobra.NoArgs,
	RunE:  runReportTopModels,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the analytics rollup from the ledger",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(refreshCmd)
	reportCmd.AddCommand(reportDailyCmd)
	reportCmd.AddCommand(reportRangeCmd)
	reportCmd.AddCommand(reportTopModelsCmd)

	for _, c := range []*cobra.Command{reportRangeCmd, reportTopModelsCmd} {
		c.Flags().StringVar(&reportFromDate, "from", "", "start date YYYY-MM-DD (inclusive, required)")
		c.Flags().StringVar(&reportToDate, "to", "", "end date YYYY-MM-DD (inclusive, required)")
		_ = c.MarkFlagRequired("from")
		_ = c.MarkFlagRequired("to")
	}
	reportTopModelsCmd.Flags().IntVar(&reportLimit, "limit", 10, "number of models")
}

func runReportDaily(_ *cobra.Command, args []string) error {
	date := time.Now().UTC().Format(persistence.DateLayout)
	if len(args) == 1 {
		date = args[0]
	}

	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := newLedgerService(&cfg).DailyReport(date)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("%s: %d interactions, %d tokens, $%.6f", summary.Date, summary.InteractionCount, summary.TotalTokens, summary.TotalCostUSD)
	if summary.DailyBudgetUSD > 0 {
		fmt.Printf(" (%.1f%% of $%.2f budget)", summary.BudgetUtilizationPct, summary.DailyBudgetUSD)
	}
	fmt.Println()
	return nil
}

func runReportRange(_ *cobra.Command, _ []string) error {
	_, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	summaries, err := persistence.Ops().GetDailySummaryRange(reportFromDate, reportToDate)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(summaries)
	}
	for _, s := range summaries {
		fmt.Printf("%s  %6d interactions  %10d tokens  $%.6f\n", s.Date, s.InteractionCount, s.TotalTokens, s.TotalCostUSD)
	}
	return nil
}

func runReportTopModels(_ *cobra.Command, _ []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	warnStaleRollup(&cfg)

	rows, err := persistence.Ops().TopModelsByCost(reportFromDate, reportToDate, reportLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rows)
	}
	for i, row := range rows {
		fmt.Printf("%2d. %s/%s  $%.6f  (%d interactions)\n", i+1, row.Provider, row.Model, row.TotalCostUSD, row.InteractionCount)
	}
	return nil
}

// warnStaleRollup nudges the operator toward `costtrack refresh` when the
// analytics snapshot is older than the configured refresh interval.
func warnStaleRollup(cfg *config.Config) {
	interval := cfg.Analytics.RefreshInterval
	if interval <= 0 {
		return
	}
	refreshedAt, err := persistence.Ops().AnalyticsRefreshedAt()
	if err != nil || refreshedAt.IsZero() {
		return
	}
	if age := time.Since(refreshedAt); age > interval {
		fmt.Fprintf(os.Stderr, "warning: analytics rollup is %s old (refresh interval %s); run 'costtrack refresh'\n",
			age.Round(time.Minute), interval)
	}
}

func runRefresh(_ *cobra.Command, _ []string) error {
	_, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := persistence.Ops().RefreshAnalytics()
	if err != nil {
		return err
	}
	fmt.Printf("analytics rollup rebuilt: %d rows\n", n)
	return nil
}
