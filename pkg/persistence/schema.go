// Package persistence provides SQLite-based storage for the cost ledger,
// aggregates, alerts, and project orchestration records.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 3

// InitializeDatabase creates and initializes the SQLite database with the required schema.
// This function is idempotent and safe to call multiple times.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection with a simple ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema with migrations
	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// If database is empty (version 0), create fresh schema
	if currentVersion == 0 {
		return createSchema(db)
	}

	// If database is up-to-date, no migration needed
	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	// Run migrations from current version to target version
	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		return nil // Initial schema, created fresh by createSchema
	case 2:
		return migrateToVersion2(db)
	case 3:
		return migrateToVersion3(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds per-request pricing to provider_pricing.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE provider_pricing ADD COLUMN per_request_usd DECIMAL(10,6) NOT NULL DEFAULT 0",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	return nil
}

// migrateToVersion3 adds the alert resolution note and an index for open-alert lookups.
func migrateToVersion3(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE cost_alerts ADD COLUMN resolution_note TEXT",
		"CREATE INDEX IF NOT EXISTS idx_cost_alerts_open ON cost_alerts(alert_type, is_resolved)",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	return nil
}

// createSchema creates all required tables, indices, and views.
func createSchema(db *sql.DB) error {
	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Versioned provider/model price points. At most one active entry
		// covers any (provider, model, instant); InsertPricing enforces
		// window non-overlap at the application layer.
		`CREATE TABLE IF NOT EXISTS provider_pricing (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			input_per_1k_usd DECIMAL(10,6) NOT NULL,
			output_per_1k_usd DECIMAL(10,6) NOT NULL,
			per_request_usd DECIMAL(10,6) NOT NULL DEFAULT 0,
			context_window INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_deprecated BOOLEAN NOT NULL DEFAULT 0,
			effective_from DATETIME NOT NULL,
			effective_to DATETIME,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE (provider, model, effective_from)
		)`,

		// Append-only ledger of individual LLM calls. Rows are never updated.
		`CREATE TABLE IF NOT EXISTS cost_tracking (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			turn_id TEXT,
			agent_id TEXT,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			input_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			output_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			total_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			request_metadata TEXT,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Per-session aggregate, maintained in the same transaction as each
		// ledger insert so it never drifts from the ledger.
		`CREATE TABLE IF NOT EXISTS cost_sessions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open','closed')),
			total_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			interaction_count BIGINT NOT NULL DEFAULT 0,
			provider_breakdown TEXT,
			model_breakdown TEXT,
			agent_breakdown TEXT,
			started_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			ended_at DATETIME,
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Per-calendar-date aggregate with budget utilization.
		`CREATE TABLE IF NOT EXISTS daily_cost_summary (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL UNIQUE,
			total_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			interaction_count BIGINT NOT NULL DEFAULT 0,
			provider_breakdown TEXT,
			daily_budget_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			budget_utilization_pct DECIMAL(8,2) NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Threshold-breach advisories. Severity is enum-typed.
		`CREATE TABLE IF NOT EXISTS cost_alerts (
			id TEXT PRIMARY KEY,
			alert_type TEXT NOT NULL CHECK (alert_type IN ('daily_limit','session_limit','spike')),
			severity TEXT NOT NULL CHECK (severity IN ('info','warning','critical')),
			message TEXT NOT NULL,
			threshold_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			observed_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			session_id TEXT,
			date TEXT,
			is_acknowledged BOOLEAN NOT NULL DEFAULT 0,
			acknowledged_at DATETIME,
			acknowledged_by TEXT,
			is_resolved BOOLEAN NOT NULL DEFAULT 0,
			resolved_at DATETIME,
			resolution_note TEXT,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Orchestration root: one row per project. Child tables cascade.
		`CREATE TABLE IF NOT EXISTS project_orchestrations (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL UNIQUE,
			orchestration_enabled BOOLEAN NOT NULL DEFAULT 1,
			primary_agent TEXT,
			coordination_pattern TEXT NOT NULL DEFAULT 'hierarchical'
				CHECK (coordination_pattern IN ('hierarchical','parallel','sequential','swarm','hybrid')),
			current_stage TEXT NOT NULL DEFAULT 'discovery'
				CHECK (current_stage IN ('discovery','planning','execution','validation','delivery','closure')),
			orchestration_status TEXT NOT NULL DEFAULT 'initializing'
				CHECK (orchestration_status IN ('initializing','active','paused','optimizing','completed','failed')),
			efficiency_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (efficiency_score >= 0 AND efficiency_score <= 1),
			collaboration_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (collaboration_score >= 0 AND collaboration_score <= 1),
			optimization_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (optimization_score >= 0 AND optimization_score <= 1),
			satisfaction_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (satisfaction_score >= 0 AND satisfaction_score <= 1),
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// One row per (orchestration, agent). Deactivated, never deleted.
		`CREATE TABLE IF NOT EXISTS project_agent_assignments (
			id TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL REFERENCES project_orchestrations(id) ON DELETE CASCADE,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'contributor'
				CHECK (role IN ('primary','contributor','consultant','reviewer','observer')),
			task_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (task_score >= 0 AND task_score <= 1),
			efficiency_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (efficiency_score >= 0 AND efficiency_score <= 1),
			collaboration_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (collaboration_score >= 0 AND collaboration_score <= 1),
			quality_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (quality_score >= 0 AND quality_score <= 1),
			tasks_assigned BIGINT NOT NULL DEFAULT 0,
			tasks_completed BIGINT NOT NULL DEFAULT 0,
			total_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT 1,
			assigned_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE (orchestration_id, agent_id)
		)`,

		// Six lifecycle stage rows per orchestration.
		`CREATE TABLE IF NOT EXISTS project_journey_stages (
			id TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL REFERENCES project_orchestrations(id) ON DELETE CASCADE,
			stage_name TEXT NOT NULL
				CHECK (stage_name IN ('discovery','planning','execution','validation','delivery','closure')),
			stage_order INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending','active','completed','blocked','skipped')),
			started_at DATETIME,
			completed_at DATETIME,
			deliverables TEXT,
			quality_score DECIMAL(4,3) CHECK (quality_score IS NULL OR (quality_score >= 0 AND quality_score <= 1)),
			satisfaction_score DECIMAL(4,3) CHECK (satisfaction_score IS NULL OR (satisfaction_score >= 0 AND satisfaction_score <= 1)),
			UNIQUE (orchestration_id, stage_name)
		)`,

		// Append-only interaction event log.
		`CREATE TABLE IF NOT EXISTS project_touchpoints (
			id TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL REFERENCES project_orchestrations(id) ON DELETE CASCADE,
			touchpoint_type TEXT NOT NULL
				CHECK (touchpoint_type IN ('agent_interaction','client_checkin','milestone_review','status_update','decision_point','quality_gate','escalation')),
			title TEXT NOT NULL,
			summary TEXT,
			stage_name TEXT,
			sentiment_score DECIMAL(4,3) CHECK (sentiment_score IS NULL OR (sentiment_score >= -1 AND sentiment_score <= 1)),
			satisfaction_score DECIMAL(4,3) CHECK (satisfaction_score IS NULL OR (satisfaction_score >= 0 AND satisfaction_score <= 1)),
			productivity_score DECIMAL(4,3) CHECK (productivity_score IS NULL OR (productivity_score >= 0 AND productivity_score <= 1)),
			linked_agents TEXT,
			linked_tasks TEXT,
			occurred_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Named multi-turn exchanges within an orchestration.
		`CREATE TABLE IF NOT EXISTS project_conversations (
			id TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL REFERENCES project_orchestrations(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
				CHECK (status IN ('active','completed','paused','terminated')),
			message_count BIGINT NOT NULL DEFAULT 0,
			turn_count BIGINT NOT NULL DEFAULT 0,
			total_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			efficiency_score DECIMAL(4,3) CHECK (efficiency_score IS NULL OR (efficiency_score >= 0 AND efficiency_score <= 1)),
			started_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			ended_at DATETIME
		)`,

		// Pairwise agent collaboration statistics over a measurement window,
		// recomputed periodically. agent_a < agent_b keeps pairs canonical.
		`CREATE TABLE IF NOT EXISTS agent_collaboration_metrics (
			id TEXT PRIMARY KEY,
			orchestration_id TEXT NOT NULL REFERENCES project_orchestrations(id) ON DELETE CASCADE,
			agent_a TEXT NOT NULL,
			agent_b TEXT NOT NULL,
			synergy_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (synergy_score >= 0 AND synergy_score <= 1),
			conflict_score DECIMAL(4,3) NOT NULL DEFAULT 0 CHECK (conflict_score >= 0 AND conflict_score <= 1),
			joint_tasks BIGINT NOT NULL DEFAULT 0,
			joint_successes BIGINT NOT NULL DEFAULT 0,
			window_start DATETIME NOT NULL,
			window_end DATETIME NOT NULL,
			computed_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE (orchestration_id, agent_a, agent_b, window_start),
			CHECK (agent_a < agent_b)
		)`,

		// Precomputed analytics aggregate. SQLite has no materialized views,
		// so this is a physical table rebuilt by RefreshAnalytics; the name
		// is kept for interface compatibility.
		`CREATE TABLE IF NOT EXISTS cost_analytics_mv (
			date TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			interaction_count BIGINT NOT NULL DEFAULT 0,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			total_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			avg_cost_usd DECIMAL(12,6) NOT NULL DEFAULT 0,
			refreshed_at DATETIME NOT NULL,
			PRIMARY KEY (date, provider, model, agent_id)
		)`,
	}

	views := []string{
		// Pricing rows valid right now. Callers needing a single answer for a
		// (provider, model) pair use CurrentPricing, which orders by
		// effective_from DESC.
		`CREATE VIEW IF NOT EXISTS current_pricing AS
			SELECT id, provider, model, input_per_1k_usd, output_per_1k_usd,
			       per_request_usd, context_window, is_active, is_deprecated,
			       effective_from, effective_to, created_at
			FROM provider_pricing
			WHERE is_active = 1
			  AND is_deprecated = 0
			  AND effective_from <= strftime('%Y-%m-%dT%H:%M:%fZ','now')
			  AND (effective_to IS NULL OR effective_to > strftime('%Y-%m-%dT%H:%M:%fZ','now'))`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_pricing_lookup ON provider_pricing(provider, model, effective_from)",
		"CREATE INDEX IF NOT EXISTS idx_cost_tracking_session ON cost_tracking(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_cost_tracking_conversation ON cost_tracking(conversation_id)",
		"CREATE INDEX IF NOT EXISTS idx_cost_tracking_agent ON cost_tracking(agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_cost_tracking_created ON cost_tracking(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_cost_tracking_provider_model ON cost_tracking(provider, model)",
		"CREATE INDEX IF NOT EXISTS idx_cost_alerts_session ON cost_alerts(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_cost_alerts_open ON cost_alerts(alert_type, is_resolved)",
		"CREATE INDEX IF NOT EXISTS idx_assignments_orchestration ON project_agent_assignments(orchestration_id)",
		"CREATE INDEX IF NOT EXISTS idx_stages_orchestration ON project_journey_stages(orchestration_id, stage_order)",
		"CREATE INDEX IF NOT EXISTS idx_touchpoints_orchestration ON project_touchpoints(orchestration_id, occurred_at)",
		"CREATE INDEX IF NOT EXISTS idx_touchpoints_type ON project_touchpoints(touchpoint_type)",
		"CREATE INDEX IF NOT EXISTS idx_conversations_orchestration ON project_conversations(orchestration_id)",
		"CREATE INDEX IF NOT EXISTS idx_collab_orchestration ON agent_collaboration_metrics(orchestration_id)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range views {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create view: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	// First ensure the schema_version table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
