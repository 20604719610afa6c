package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// sqliteTimeLayout matches strftime('%Y-%m-%dT%H:%M:%fZ','now'), the format
// used for all DEFAULT timestamps in the schema. All timestamps written from
// Go use the same layout so that window comparisons inside SQL views compare
// lexicographically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// DateLayout is the calendar-date key format for daily_cost_summary and
// cost_analytics_mv rows.
const DateLayout = "2006-01-02"

// FormatTime renders a timestamp in the canonical storage format (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// ParseTime parses a stored timestamp string.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Orchestration status constants (orchestration_status enum).
const (
	OrchestrationInitializing = "initializing"
	OrchestrationActive       = "active"
	OrchestrationPaused       = "paused"
	OrchestrationOptimizing   = "optimizing"
	OrchestrationCompleted    = "completed"
	OrchestrationFailed       = "failed"
)

// Coordination pattern constants (coordination_pattern enum).
const (
	PatternHierarchical = "hierarchical"
	PatternParallel     = "parallel"
	PatternSequential   = "sequential"
	PatternSwarm        = "swarm"
	PatternHybrid       = "hybrid"
)

// Journey stage name constants (journey_stage enum), in lifecycle order.
const (
	StageDiscovery  = "discovery"
	StagePlanning   = "planning"
	StageExecution  = "execution"
	StageValidation = "validation"
	StageDelivery   = "delivery"
	StageClosure    = "closure"
)

// JourneyStageOrder lists the six lifecycle stages in their expected sequence.
// CreateOrchestration seeds one row per entry.
func JourneyStageOrder() []string {
	return []string{
		StageDiscovery,
		StagePlanning,
		StageExecution,
		StageValidation,
		StageDelivery,
		StageClosure,
	}
}

// Stage status constants.
const (
	StageStatusPending   = "pending"
	StageStatusActive    = "active"
	StageStatusCompleted = "completed"
	StageStatusBlocked   = "blocked"
	StageStatusSkipped   = "skipped"
)

// Touchpoint type constants (touchpoint_type enum).
const (
	TouchpointAgentInteraction = "agent_interaction"
	TouchpointClientCheckin    = "client_checkin"
	TouchpointMilestoneReview  = "milestone_review"
	TouchpointStatusUpdate     = "status_update"
	TouchpointDecisionPoint    = "decision_point"
	TouchpointQualityGate      = "quality_gate"
	TouchpointEscalation       = "escalation"
)

// Agent role constants (agent_role enum).
const (
	RolePrimary     = "primary"
	RoleContributor = "contributor"
	RoleConsultant  = "consultant"
	RoleReviewer    = "reviewer"
	RoleObserver    = "observer"
)

// Conversation status constants.
const (
	ConversationActive     = "active"
	ConversationCompleted  = "completed"
	ConversationPaused     = "paused"
	ConversationTerminated = "terminated"
)

// Alert type constants.
const (
	AlertDailyLimit   = "daily_limit"
	AlertSessionLimit = "session_limit"
	AlertSpike        = "spike"
)

// Alert severity constants. Severity is a proper enum, not free text.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Cost session status constants.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// PricingEntry is one versioned price point for a (provider, model) pair.
// At most one active entry covers any instant; InsertPricing rejects
// overlapping validity windows.
type PricingEntry struct {
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveTo    *time.Time `json:"effective_to,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	Model          string     `json:"model"`
	InputPer1KUSD  float64    `json:"input_per_1k_usd"`
	OutputPer1KUSD float64    `json:"output_per_1k_usd"`
	PerRequestUSD  float64    `json:"per_request_usd"`
	ContextWindow  int        `json:"context_window"`
	IsActive       bool       `json:"is_active"`
	IsDeprecated   bool       `json:"is_deprecated"`
}

// Interaction is one immutable ledger row in cost_tracking: a single LLM API
// call with its token counts and computed costs. Rows are insert-only.
//
//nolint:govet // struct alignment optimization not critical for this type
type Interaction struct {
	CreatedAt       time.Time `json:"created_at"`
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ConversationID  string    `json:"conversation_id"`
	TurnID          *string   `json:"turn_id,omitempty"`
	AgentID         *string   `json:"agent_id,omitempty"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
	TotalTokens     int64     `json:"total_tokens"`
	InputCostUSD    float64   `json:"input_cost_usd"`
	OutputCostUSD   float64   `json:"output_cost_usd"`
	TotalCostUSD    float64   `json:"total_cost_usd"`
	RequestMetadata string    `json:"request_metadata,omitempty"` // JSON blob for extensibility
}

// BreakdownSchemaVersion is written into every serialized breakdown so shape
// drift is detectable.
const BreakdownSchemaVersion = 1

// BreakdownEntry aggregates cost and usage for one breakdown key
// (a provider, model, or agent identifier).
type BreakdownEntry struct {
	CostUSD      float64 `json:"cost_usd"`
	Tokens       int64   `json:"tokens"`
	Interactions int64   `json:"interactions"`
}

// Breakdown is the documented shape of the JSON breakdown columns on
// cost_sessions and daily_cost_summary.
type Breakdown struct {
	Entries map[string]BreakdownEntry `json:"entries"`
	Schema  int                       `json:"schema"`
}

// NewBreakdown returns an empty breakdown at the current schema version.
func NewBreakdown() Breakdown {
	return Breakdown{Schema: BreakdownSchemaVersion, Entries: make(map[string]BreakdownEntry)}
}

// Add accumulates one interaction's contribution under the given key.
func (b *Breakdown) Add(key string, costUSD float64, tokens int64) {
	if b.Entries == nil {
		b.Entries = make(map[string]BreakdownEntry)
	}
	if b.Schema == 0 {
		b.Schema = BreakdownSchemaVersion
	}
	entry := b.Entries[key]
	entry.CostUSD += costUSD
	entry.Tokens += tokens
	entry.Interactions++
	b.Entries[key] = entry
}

// MarshalBreakdown serializes a breakdown for storage.
func MarshalBreakdown(b Breakdown) (string, error) {
	if b.Schema == 0 {
		b.Schema = BreakdownSchemaVersion
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	return string(data), nil
}

// UnmarshalBreakdown parses a stored breakdown column. An empty column yields
// an empty breakdown.
func UnmarshalBreakdown(s string) (Breakdown, error) {
	if s == "" {
		return NewBreakdown(), nil
	}
	var b Breakdown
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return Breakdown{}, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}
	if b.Entries == nil {
		b.Entries = make(map[string]BreakdownEntry)
	}
	return b, nil
}

// CostSession is the incrementally maintained per-session aggregate.
// One row per session_id; created on the first interaction of a session and
// updated in the same transaction as every subsequent ledger insert.
//
//nolint:govet // struct alignment optimization not critical for this type
type CostSession struct {
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ID                string     `json:"id"`
	SessionID         string     `json:"session_id"`
	Status            string     `json:"status"` // open, closed
	TotalCostUSD      float64    `json:"total_cost_usd"`
	TotalTokens       int64      `json:"total_tokens"`
	InteractionCount  int64      `json:"interaction_count"`
	ProviderBreakdown Breakdown  `json:"provider_breakdown"`
	ModelBreakdown    Breakdown  `json:"model_breakdown"`
	AgentBreakdown    Breakdown  `json:"agent_breakdown"`
}

// DailySummary is the per-calendar-date aggregate, keyed uniquely by date.
//
//nolint:govet // struct alignment optimization not critical for this type
type DailySummary struct {
	UpdatedAt            time.Time `json:"updated_at"`
	ID                   string    `json:"id"`
	Date                 string    `json:"date"` // YYYY-MM-DD
	TotalCostUSD         float64   `json:"total_cost_usd"`
	TotalTokens          int64     `json:"total_tokens"`
	InteractionCount     int64     `json:"interaction_count"`
	ProviderBreakdown    Breakdown `json:"provider_breakdown"`
	DailyBudgetUSD       float64   `json:"daily_budget_usd"`
	BudgetUtilizationPct float64   `json:"budget_utilization_pct"`
}

// Alert is an advisory record for a threshold breach.
// Lifecycle: open -> acknowledged -> resolved; no automatic transitions.
//
//nolint:govet // struct alignment optimization not critical for this type
type Alert struct {
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ID             string     `json:"id"`
	AlertType      string     `json:"alert_type"` // daily_limit, session_limit, spike
	Severity       string     `json:"severity"`   // info, warning, critical
	Message        string     `json:"message"`
	ThresholdUSD   float64    `json:"threshold_usd"`
	ObservedUSD    float64    `json:"observed_usd"`
	SessionID      *string    `json:"session_id,omitempty"`
	Date           *string    `json:"date,omitempty"`
	IsAcknowledged bool       `json:"is_acknowledged"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	IsResolved     bool       `json:"is_resolved"`
	ResolutionNote *string    `json:"resolution_note,omitempty"`
}

// Orchestration is the aggregate root for one project's coordination state.
// One row per project_id; all child tables cascade on delete.
//
//nolint:govet // struct alignment optimization not critical for this type
type Orchestration struct {
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	ID                  string    `json:"id"`
	ProjectID           string    `json:"project_id"`
	Enabled             bool      `json:"orchestration_enabled"`
	PrimaryAgent        string    `json:"primary_agent"`
	CoordinationPattern string    `json:"coordination_pattern"`
	CurrentStage        string    `json:"current_stage"`
	Status              string    `json:"orchestration_status"`
	EfficiencyScore     float64   `json:"efficiency_score"`
	CollaborationScore  float64   `json:"collaboration_score"`
	OptimizationScore   float64   `json:"optimization_score"`
	SatisfactionScore   float64   `json:"satisfaction_score"`
}

// AgentAssignment pairs one agent with one orchestration.
// Removed agents are deactivated, never deleted.
//
//nolint:govet // struct alignment optimization not critical for this type
type AgentAssignment struct {
	AssignedAt         time.Time `json:"assigned_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	ID                 string    `json:"id"`
	OrchestrationID    string    `json:"orchestration_id"`
	AgentID            string    `json:"agent_id"`
	Role               string    `json:"role"`
	TaskScore          float64   `json:"task_score"`
	EfficiencyScore    float64   `json:"efficiency_score"`
	CollaborationScore float64   `json:"collaboration_score"`
	QualityScore       float64   `json:"quality_score"`
	TasksAssigned      int64     `json:"tasks_assigned"`
	TasksCompleted     int64     `json:"tasks_completed"`
	TotalCostUSD       float64   `json:"total_cost_usd"`
	TotalTokens        int64     `json:"total_tokens"`
	Active             bool      `json:"active"`
}

// JourneyStage is one of the six lifecycle stage rows for an orchestration,
// unique per (orchestration_id, stage_name).
//
//nolint:govet // struct alignment optimization not critical for this type
type JourneyStage struct {
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ID                string     `json:"id"`
	OrchestrationID   string     `json:"orchestration_id"`
	StageName         string     `json:"stage_name"`
	StageOrder        int        `json:"stage_order"`
	Status            string     `json:"status"`
	Deliverables      string     `json:"deliverables,omitempty"` // JSON blob
	QualityScore      *float64   `json:"quality_score,omitempty"`
	SatisfactionScore *float64   `json:"satisfaction_score,omitempty"`
}

// Touchpoint is an append-only event row within an orchestration journey.
//
//nolint:govet // struct alignment optimization not critical for this type
type Touchpoint struct {
	OccurredAt        time.Time `json:"occurred_at"`
	CreatedAt         time.Time `json:"created_at"`
	ID                string    `json:"id"`
	OrchestrationID   string    `json:"orchestration_id"`
	TouchpointType    string    `json:"touchpoint_type"`
	Title             string    `json:"title"`
	Summary           string    `json:"summary,omitempty"`
	StageName         *string   `json:"stage_name,omitempty"`
	SentimentScore    *float64  `json:"sentiment_score,omitempty"`    // [-1, 1]
	SatisfactionScore *float64  `json:"satisfaction_score,omitempty"` // [0, 1]
	ProductivityScore *float64  `json:"productivity_score,omitempty"` // [0, 1]
	LinkedAgents      string    `json:"linked_agents,omitempty"`      // JSON array
	LinkedTasks       string    `json:"linked_tasks,omitempty"`       // JSON array
}

// Conversation tracks one named multi-turn exchange within an orchestration.
//
//nolint:govet // struct alignment optimization not critical for this type
type Conversation struct {
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	ID              string     `json:"id"`
	OrchestrationID string     `json:"orchestration_id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	MessageCount    int64      `json:"message_count"`
	TurnCount       int64      `json:"turn_count"`
	TotalCostUSD    float64    `json:"total_cost_usd"`
	TotalTokens     int64      `json:"total_tokens"`
	EfficiencyScore *float64   `json:"efficiency_score,omitempty"`
}

// CollaborationMetric summarizes pairwise agent synergy over a measurement
// window. Rows are recomputed periodically, keyed by the ordered agent pair
// and window start. Invariant: agent_a < agent_b.
//
//nolint:govet // struct alignment optimization not critical for this type
type CollaborationMetric struct {
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	ComputedAt      time.Time `json:"computed_at"`
	ID              string    `json:"id"`
	OrchestrationID string    `json:"orchestration_id"`
	AgentA          string    `json:"agent_a"`
	AgentB          string    `json:"agent_b"`
	SynergyScore    float64   `json:"synergy_score"`
	ConflictScore   float64   `json:"conflict_score"`
	JointTasks      int64     `json:"joint_tasks"`
	JointSuccesses  int64     `json:"joint_successes"`
}

// AnalyticsRow is one precomputed aggregate in cost_analytics_mv, keyed by
// (date, provider, model, agent_id).
//
//nolint:govet // struct alignment optimization not critical for this type
type AnalyticsRow struct {
	RefreshedAt      time.Time `json:"refreshed_at"`
	Date             string    `json:"date"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	AgentID          string    `json:"agent_id"` // empty when the ledger row had no agent
	InteractionCount int64     `json:"interaction_count"`
	InputTokens      int64     `json:"input_tokens"`
	OutputTokens     int64     `json:"output_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
	AvgCostUSD       float64   `json:"avg_cost_usd"`
}

// InteractionFilter represents criteria for querying ledger rows.
type InteractionFilter struct {
	SessionID      *string    `json:"session_id,omitempty"`
	ConversationID *string    `json:"conversation_id,omitempty"`
	Provider       *string    `json:"provider,omitempty"`
	Model          *string    `json:"model,omitempty"`
	AgentID        *string    `json:"agent_id,omitempty"`
	Since          *time.Time `json:"since,omitempty"`
	Until          *time.Time `json:"until,omitempty"`
}

// GenerateID generates a new UUID for any row.
func GenerateID() string {
	return uuid.New().String()
}

// validOrchestrationStatuses and friends back the IsValid helpers. The same
// sets are enforced as CHECK constraints in the schema.
func validSet(values ...string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

//nolint:gochecknoglobals // static enum sets
var (
	orchestrationStatuses = validSet(OrchestrationInitializing, OrchestrationActive,
		OrchestrationPaused, OrchestrationOptimizing, OrchestrationCompleted, OrchestrationFailed)
	coordinationPatterns = validSet(PatternHierarchical, PatternParallel,
		PatternSequential, PatternSwarm, PatternHybrid)
	journeyStages = validSet(StageDiscovery, StagePlanning, StageExecution,
		StageValidation, StageDelivery, StageClosure)
	stageStatuses = validSet(StageStatusPending, StageStatusActive,
		StageStatusCompleted, StageStatusBlocked, StageStatusSkipped)
	touchpointTypes = validSet(TouchpointAgentInteraction, TouchpointClientCheckin,
		TouchpointMilestoneReview, TouchpointStatusUpdate, TouchpointDecisionPoint,
		TouchpointQualityGate, TouchpointEscalation)
	agentRoles           = validSet(RolePrimary, RoleContributor, RoleConsultant, RoleReviewer, RoleObserver)
	conversationStatuses = validSet(ConversationActive, ConversationCompleted, ConversationPaused, ConversationTerminated)
	alertTypes           = validSet(AlertDailyLimit, AlertSessionLimit, AlertSpike)
	alertSeverities      = validSet(SeverityInfo, SeverityWarning, SeverityCritical)
)

// IsValidOrchestrationStatus checks an orchestration_status value.
func IsValidOrchestrationStatus(s string) bool { return orchestrationStatuses[s] }

// IsValidCoordinationPattern checks a coordination_pattern value.
func IsValidCoordinationPattern(s string) bool { return coordinationPatterns[s] }

// IsValidJourneyStage checks a journey_stage value.
func IsValidJourneyStage(s string) bool { return journeyStages[s] }

// IsValidStageStatus checks a journey stage status value.
func IsValidStageStatus(s string) bool { return stageStatuses[s] }

// IsValidTouchpointType checks a touchpoint_type value.
func IsValidTouchpointType(s string) bool { return touchpointTypes[s] }

// IsValidAgentRole checks an agent_role value.
func IsValidAgentRole(s string) bool { return agentRoles[s] }

// IsValidConversationStatus checks a conversation status value.
func IsValidConversationStatus(s string) bool { return conversationStatuses[s] }

// IsValidAlertType checks an alert_type value.
func IsValidAlertType(s string) bool { return alertTypes[s] }

// IsValidAlertSeverity checks an alert severity value.
func IsValidAlertSeverity(s string) bool { return alertSeverities[s] }
