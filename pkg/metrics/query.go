package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionTotals represents aggregated token and cost series for one session,
// as seen by Prometheus. Under normal operation it tracks the database
// aggregate; divergence means interactions were observed but not persisted
// (or vice versa).
type SessionTotals struct {
	SessionID    string  `json:"session_id"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost_usd"`
}

// QueryService provides methods to query recorded series from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetSessionTotals retrieves aggregated token and cost metrics for a session,
// summed across providers, models, and agents.
func (q *QueryService) GetSessionTotals(ctx context.Context, sessionID string) (*SessionTotals, error) {
	totals := &SessionTotals{
		SessionID: sessionID,
	}

	inputQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="input"})`, sessionID)
	inputResult, _, err := q.queryAPI.Query(ctx, inputQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query input tokens: %w", err)
	}
	if vector, ok := inputResult.(model.Vector); ok && len(vector) > 0 {
		totals.InputTokens = int64(vector[0].Value)
	}

	outputQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="output"})`, sessionID)
	outputResult, _, err := q.queryAPI.Query(ctx, outputQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query output tokens: %w", err)
	}
	if vector, ok := outputResult.(model.Vector); ok && len(vector) > 0 {
		totals.OutputTokens = int64(vector[0].Value)
	}

	totals.TotalTokens = totals.InputTokens + totals.OutputTokens

	costQuery := fmt.Sprintf(`sum(llm_costs_total{session_id=%q})`, sessionID)
	costResult, _, err := q.queryAPI.Query(ctx, costQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	if vector, ok := costResult.(model.Vector); ok && len(vector) > 0 {
		totals.TotalCost = float64(vector[0].Value)
	}

	return totals, nil
}

// GetSessionTotalsByModel retrieves per-model metrics for a session, showing
// which models were used and their individual costs.
func (q *QueryService) GetSessionTotalsByModel(ctx context.Context, sessionID string) (map[string]*SessionTotals, error) {
	result := make(map[string]*SessionTotals)

	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{session_id=%q})`, sessionID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	for _, modelName := range models {
		totals := &SessionTotals{
			SessionID: sessionID,
		}

		inputQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, model=%q, type="input"})`, sessionID, modelName)
		inputResult, _, err := q.queryAPI.Query(ctx, inputQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query input tokens for model %s: %w", modelName, err)
		}
		if vector, ok := inputResult.(model.Vector); ok && len(vector) > 0 {
			totals.InputTokens = int64(vector[0].Value)
		}

		outputQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, model=%q, type="output"})`, sessionID, modelName)
		outputResult, _, err := q.queryAPI.Query(ctx, outputQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query output tokens for model %s: %w", modelName, err)
		}
		if vector, ok := outputResult.(model.Vector); ok && len(vector) > 0 {
			totals.OutputTokens = int64(vector[0].Value)
		}

		totals.TotalTokens = totals.InputTokens + totals.OutputTokens

		costQuery := fmt.Sprintf(`sum(llm_costs_total{session_id=%q, model=%q})`, sessionID, modelName)
		costResult, _, err := q.queryAPI.Query(ctx, costQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query cost for model %s: %w", modelName, err)
		}
		if vector, ok := costResult.(model.Vector); ok && len(vector) > 0 {
			totals.TotalCost = float64(vector[0].Value)
		}

		result[modelName] = totals
	}

	return result, nil
}

// GetDailyCost retrieves the cost accumulated over the last 24 hours, summed
// across all sessions.
func (q *QueryService) GetDailyCost(ctx context.Context) (float64, error) {
	query := `sum(increase(llm_costs_total[24h]))`
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query daily cost: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
