package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"costtrack/pkg/metrics"
)

var sessionFromPrometheus bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and close session cost aggregates",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's cost aggregate",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session aggregate",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionClose,
}

var sessionReconcileCmd = &cobra.Command{
	Use:   "reconcile <session-id>",
	Short: "Verify a session aggregate against the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionReconcile,
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
	sessionCmd.AddCommand(sessionReconcileCmd)

	sessionShowCmd.Flags().BoolVar(&sessionFromPrometheus, "prometheus", false, "query totals from the configured Prometheus instance instead of the database")
}

func runSessionShow(_ *cobra.Command, args []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	if sessionFromPrometheus {
		if cfg.Metrics.PrometheusURL == "" {
			return fmt.Errorf("metrics.prometheus_url is not configured")
		}
		query, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		totals, err := query.GetSessionTotals(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(totals)
		}
		fmt.Printf("session %s (prometheus)\n", totals.SessionID)
		fmt.Printf("  tokens: %d in / %d out / %d total\n", totals.InputTokens, totals.OutputTokens, totals.TotalTokens)
		fmt.Printf("  cost:   $%.6f\n", totals.TotalCost)
		return nil
	}

	sess, err := newLedgerService(&cfg).SessionReport(args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(sess)
	}
	fmt.Printf("session %s [%s]\n", sess.SessionID, sess.Status)
	fmt.Printf("  interactions: %d\n", sess.InteractionCount)
	fmt.Printf("  tokens:       %d\n", sess.TotalTokens)
	fmt.Printf("  cost:         $%.6f\n", sess.TotalCostUSD)
	return nil
}

func runSessionClose(_ *cobra.Command, args []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := newLedgerService(&cfg).CloseSession(args[0]); err != nil {
		return err
	}
	fmt.Printf("session %s closed\n", args[0])
	return nil
}

func runSessionReconcile(_ *cobra.Command, args []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := newLedgerService(&cfg).Reconcile(args[0]); err != nil {
		return err
	}
	fmt.Printf("session %s aggregate matches the ledger\n", args[0])
	return nil
}
