package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"costtrack/pkg/alerts"
	"costtrack/pkg/config"
	"costtrack/pkg/persistence"
)

var (
	alertsCheckSession string
	alertsSeverity     string
	alertsAckBy        string
	alertsResolveNote  string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Check thresholds and manage the alert lifecycle",
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check [date]",
	Short: "Evaluate budget and spike thresholds (default: today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAlertsCheck,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved alerts",
	Args:  cobra.NoArgs,
	RunE:  runAlertsList,
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsAck,
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsResolve,
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsCheckCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAckCmd)
	alertsCmd.AddCommand(alertsResolveCmd)

	alertsCheckCmd.Flags().StringVar(&alertsCheckSession, "session", "", "also check this session against its limit")
	alertsListCmd.Flags().StringVar(&alertsSeverity, "severity", "", "filter by severity (info|warning|critical)")
	alertsAckCmd.Flags().StringVar(&alertsAckBy, "by", "", "acknowledging operator (required)")
	alertsResolveCmd.Flags().StringVar(&alertsResolveNote, "note", "", "resolution note")
	_ = alertsAckCmd.MarkFlagRequired("by")
}

func newMonitor(cfg *config.Config) *alerts.Monitor {
	return alerts.NewMonitor(persistence.Ops(), alerts.Thresholds{
		DailyBudgetUSD:  cfg.Budgets.DailyBudgetUSD,
		SessionLimitUSD: cfg.Budgets.SessionLimitUSD,
		SpikeMultiplier: cfg.Budgets.SpikeMultiplier,
		SpikeWindowDays: cfg.Budgets.SpikeWindowDays,
	})
}

func runAlertsCheck(_ *cobra.Command, args []string) error {
	date := time.Now().UTC().Format(persistence.DateLayout)
	if len(args) == 1 {
		date = args[0]
	}

	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	monitor := newMonitor(&cfg)
	raised, err := monitor.CheckAll(date)
	if err != nil {
		return err
	}
	if alertsCheckSession != "" {
		alert, err := monitor.CheckSession(alertsCheckSession)
		if err != nil {
			return err
		}
		if alert != nil {
			raised = append(raised, alert)
		}
	}

	if jsonOut {
		return printJSON(raised)
	}
	if len(raised) == 0 {
		fmt.Println("no thresholds breached")
		return nil
	}
	for _, a := range raised {
		fmt.Printf("[%s] %s: %s (%s)\n", a.Severity, a.AlertType, a.Message, a.ID)
	}
	return nil
}

func runAlertsList(_ *cobra.Command, _ []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	var severities []string
	if alertsSeverity != "" {
		severities = append(severities, alertsSeverity)
	}
	open, err := newMonitor(&cfg).Open(severities...)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(open)
	}
	if len(open) == 0 {
		fmt.Println("no unresolved alerts")
		return nil
	}
	for _, a := range open {
		status := "open"
		if a.AcknowledgedAt != nil {
			status = "acknowledged"
		}
		fmt.Printf("%s  [%s/%s]  %s  %s\n", a.ID, a.Severity, status, a.AlertType, a.Message)
	}
	return nil
}

func runAlertsAck(_ *cobra.Command, args []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := newMonitor(&cfg).Acknowledge(args[0], alertsAckBy); err != nil {
		return err
	}
	fmt.Printf("alert %s acknowledged by %s\n", args[0], alertsAckBy)
	return nil
}

func runAlertsResolve(_ *cobra.Command, args []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := newMonitor(&cfg).Resolve(args[0], alertsResolveNote); err != nil {
		return err
	}
	fmt.Printf("alert %s resolved\n", args[0])
	return nil
}
