package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"costtrack/pkg/ledger"
)

var (
	recordSession      string
	recordConversation string
	recordTurn         string
	recordAgent        string
	recordProvider     string
	recordModel        string
	recordInputTokens  int64
	recordOutputTokens int64
	recordDurationMS   int64
	recordMetadata     string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one LLM API call into the cost ledger",
	Args:  cobra.NoArgs,
	RunE:  runRecord,
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVar(&recordSession, "session", "", "session ID (required)")
	recordCmd.Flags().StringVar(&recordConversation, "conversation", "", "conversation ID (required)")
	recordCmd.Flags().StringVar(&recordTurn, "turn", "", "turn ID")
	recordCmd.Flags().StringVar(&recordAgent, "agent", "", "agent ID")
	recordCmd.Flags().StringVar(&recordProvider, "provider", "", "API provider (required)")
	recordCmd.Flags().StringVar(&recordModel, "model", "", "model name (required)")
	recordCmd.Flags().Int64Var(&recordInputTokens, "input-tokens", 0, "prompt tokens")
	recordCmd.Flags().Int64Var(&recordOutputTokens, "output-tokens", 0, "completion tokens")
	recordCmd.Flags().Int64Var(&recordDurationMS, "duration-ms", 0, "request duration in milliseconds")
	recordCmd.Flags().StringVar(&recordMetadata, "metadata", "", "JSON metadata blob")

	for _, name := range []string{"session", "conversation", "provider", "model"} {
		_ = recordCmd.MarkFlagRequired(name)
	}
}

func runRecord(_ *cobra.Command, _ []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	svc := newLedgerService(&cfg)
	req := &ledger.Request{
		SessionID:      recordSession,
		ConversationID: recordConversation,
		Provider:       recordProvider,
		Model:          recordModel,
		Usage: ledger.Usage{
			InputTokens:  recordInputTokens,
			OutputTokens: recordOutputTokens,
		},
		Metadata: recordMetadata,
		Duration: time.Duration(recordDurationMS) * time.Millisecond,
	}
	if recordTurn != "" {
		req.TurnID = &recordTurn
	}
	if recordAgent != "" {
		req.AgentID = &recordAgent
	}

	rec, err := svc.Record(req)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(rec)
	}
	fmt.Printf("recorded %s: %d tokens, $%.6f\n", rec.ID, rec.TotalTokens, rec.TotalCostUSD)
	return nil
}
