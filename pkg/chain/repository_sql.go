package chain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLRepository implements Repository over PostgreSQL, MySQL, or SQLite via
// database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

const chainSchemaSQL = `
CREATE TABLE IF NOT EXISTS reasoning_chains (
    id VARCHAR(255) PRIMARY KEY,
    task_id VARCHAR(255) NOT NULL,
    agent_id VARCHAR(255) NOT NULL,
    tenant_id VARCHAR(255),
    status VARCHAR(50) NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    metrics TEXT,
    child_chain_ids TEXT
);

CREATE TABLE IF NOT EXISTS reasoning_steps (
    id VARCHAR(255) PRIMARY KEY,
    chain_id VARCHAR(255) NOT NULL REFERENCES reasoning_chains(id) ON DELETE CASCADE,
    step_number INTEGER NOT NULL,
    step_type VARCHAR(50) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    parent_step_id VARCHAR(255),
    payload TEXT,
    visibility_level VARCHAR(20) NOT NULL,
    visibility_reason TEXT,
    tokens_used INTEGER NOT NULL,
    cost DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chains_task_id ON reasoning_chains(task_id);
CREATE INDEX IF NOT EXISTS idx_chains_tenant_id ON reasoning_chains(tenant_id);
CREATE INDEX IF NOT EXISTS idx_chains_started_at ON reasoning_chains(started_at);
CREATE INDEX IF NOT EXISTS idx_steps_chain_id ON reasoning_steps(chain_id);
`

// NewSQLRepository creates a SQL-backed chain repository and initializes the
// schema.
func NewSQLRepository(db *sql.DB, dialect string) (*SQLRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	r := &SQLRepository{db: db, dialect: dialect}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *SQLRepository) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range strings.Split(chainSchemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind converts '?' placeholders to '$n' for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *SQLRepository) Save(ctx context.Context, c *Chain) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	metricsJSON, err := json.Marshal(c.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	childIDsJSON, err := json.Marshal(c.ChildChainIDs)
	if err != nil {
		return fmt.Errorf("failed to encode child chain ids: %w", err)
	}

	// Save is idempotent: replace the chain row and its steps.
	if _, err := tx.ExecContext(ctx, r.rebind(
		`DELETE FROM reasoning_steps WHERE chain_id = ?`), c.ID); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.rebind(
		`DELETE FROM reasoning_chains WHERE id = ?`), c.ID); err != nil {
		return fmt.Errorf("failed to clear chain: %w", err)
	}

	var completedAt interface{}
	if c.CompletedAt != nil {
		completedAt = c.CompletedAt.UTC()
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`
INSERT INTO reasoning_chains (id, task_id, agent_id, tenant_id, status, started_at, completed_at, metrics, child_chain_ids)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.TaskID, c.AgentID, c.TenantID, string(c.Status),
		c.StartedAt.UTC(), completedAt, string(metricsJSON), string(childIDsJSON),
	); err != nil {
		return fmt.Errorf("failed to insert chain: %w", err)
	}

	for _, s := range c.Steps {
		payloadJSON, err := json.Marshal(s.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode step payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`
INSERT INTO reasoning_steps (id, chain_id, step_number, step_type, created_at, parent_step_id, payload, visibility_level, visibility_reason, tokens_used, cost)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			s.ID, c.ID, s.StepNumber, string(s.Type), s.Timestamp.UTC(),
			s.ParentStepID, string(payloadJSON),
			string(s.Visibility.Level), s.Visibility.Reason,
			s.TokensUsed, s.Cost,
		); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", s.StepNumber, err)
		}
	}

	return tx.Commit()
}

func (r *SQLRepository) GetByID(ctx context.Context, chainID string) (*Chain, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
SELECT id, task_id, agent_id, tenant_id, status, started_at, completed_at, metrics, child_chain_ids
FROM reasoning_chains WHERE id = ?`), chainID)

	c, err := scanChain(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{ChainID: chainID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}

	steps, err := r.loadSteps(ctx, chainID)
	if err != nil {
		return nil, err
	}
	c.Steps = steps
	return c, nil
}

func (r *SQLRepository) GetByTask(ctx context.Context, taskID string) ([]*Chain, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
SELECT id, task_id, agent_id, tenant_id, status, started_at, completed_at, metrics, child_chain_ids
FROM reasoning_chains WHERE task_id = ? ORDER BY started_at DESC`), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	var chains []*Chain
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range chains {
		steps, err := r.loadSteps(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Steps = steps
	}
	return chains, nil
}

func (r *SQLRepository) ListByTenant(ctx context.Context, tenantID string, status Status, limit, offset int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT id, task_id, agent_id, tenant_id, status, started_at, completed_at, metrics, child_chain_ids
FROM reasoning_chains WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		summaries = append(summaries, Summary{
			ID:          c.ID,
			TaskID:      c.TaskID,
			AgentID:     c.AgentID,
			TenantID:    c.TenantID,
			Status:      c.Status,
			StartedAt:   c.StartedAt,
			CompletedAt: c.CompletedAt,
			Metrics:     c.Metrics,
		})
	}
	return summaries, rows.Err()
}

func (r *SQLRepository) Delete(ctx context.Context, chainID string) (bool, error) {
	// Steps are removed explicitly for engines without FK cascade support.
	if _, err := r.db.ExecContext(ctx, r.rebind(
		`DELETE FROM reasoning_steps WHERE chain_id = ?`), chainID); err != nil {
		return false, fmt.Errorf("failed to delete steps: %w", err)
	}
	result, err := r.db.ExecContext(ctx, r.rebind(
		`DELETE FROM reasoning_chains WHERE id = ?`), chainID)
	if err != nil {
		return false, fmt.Errorf("failed to delete chain: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLRepository) loadSteps(ctx context.Context, chainID string) ([]*Step, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
SELECT id, step_number, step_type, created_at, parent_step_id, payload, visibility_level, visibility_reason, tokens_used, cost
FROM reasoning_steps WHERE chain_id = ? ORDER BY step_number ASC`), chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []*Step
	for rows.Next() {
		var (
			s           Step
			stepType    string
			parentID    sql.NullString
			payloadJSON string
			visLevel    string
			visReason   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.StepNumber, &stepType, &s.Timestamp, &parentID,
			&payloadJSON, &visLevel, &visReason, &s.TokensUsed, &s.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.Type = StepType(stepType)
		s.ParentStepID = parentID.String
		s.Visibility = Visibility{Level: VisibilityLevel(visLevel), Reason: visReason.String}
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &s.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode step payload: %w", err)
			}
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChain(row rowScanner) (*Chain, error) {
	var (
		c            Chain
		tenantID     sql.NullString
		status       string
		completedAt  sql.NullTime
		metricsJSON  sql.NullString
		childIDsJSON sql.NullString
	)
	if err := row.Scan(&c.ID, &c.TaskID, &c.AgentID, &tenantID, &status,
		&c.StartedAt, &completedAt, &metricsJSON, &childIDsJSON); err != nil {
		return nil, err
	}
	c.TenantID = tenantID.String
	c.Status = Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		if err := json.Unmarshal([]byte(metricsJSON.String), &c.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
	}
	if childIDsJSON.Valid && childIDsJSON.String != "" {
		if err := json.Unmarshal([]byte(childIDsJSON.String), &c.ChildChainIDs); err != nil {
			return nil, fmt.Errorf("failed to decode child chain ids: %w", err)
		}
	}
	return &c, nil
}
