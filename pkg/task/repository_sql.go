package task

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
// database/sql. Message history and artifacts are stored as JSON columns;
// the queried fields get their own columns and indexes.
type SQLRepository struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

const taskSchemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id VARCHAR(255) PRIMARY KEY,
    agent_id VARCHAR(255) NOT NULL,
    tenant_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255),
    state VARCHAR(50) NOT NULL,
    messages TEXT,
    artifacts TEXT,
    error TEXT,
    parent_task_id VARCHAR(255),
    skill_name VARCHAR(255),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_agent_id ON tasks(agent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_tenant_id ON tasks(tenant_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_skill_name ON tasks(skill_name);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

// NewSQLRepository creates a SQL-backed task repository and initializes the
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

	for _, stmt := range strings.Split(taskSchemaSQL, ";") {
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

const taskColumns = `id, agent_id, tenant_id, user_id, state, messages, artifacts, error, parent_task_id, skill_name, created_at, updated_at`

func (r *SQLRepository) Get(ctx context.Context, tenantID, taskID string) (*Task, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND tenant_id = ?`), taskID, tenantID)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{TaskID: taskID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

func (r *SQLRepository) Save(ctx context.Context, t *Task) error {
	if err := validateForSave(t); err != nil {
		return err
	}

	if t.ParentTaskID != "" {
		var one int
		err := r.db.QueryRowContext(ctx, r.rebind(
			`SELECT 1 FROM tasks WHERE id = ? AND tenant_id = ?`),
			t.ParentTaskID, t.TenantID).Scan(&one)
		if err == sql.ErrNoRows {
			return &NotFoundError{TaskID: t.ParentTaskID}
		}
		if err != nil {
			return fmt.Errorf("failed to check parent task: %w", err)
		}
	}

	messagesJSON, artifactsJSON, err := encodeTaskBlobs(t)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, r.rebind(`
INSERT INTO tasks (`+taskColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.AgentID, t.TenantID, t.UserID, string(t.State),
		messagesJSON, artifactsJSON, t.Error, t.ParentTaskID, t.SkillName,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r *SQLRepository) Update(ctx context.Context, t *Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var storedState, storedParent string
	err = tx.QueryRowContext(ctx, r.rebind(
		`SELECT state, parent_task_id FROM tasks WHERE id = ? AND tenant_id = ?`),
		t.ID, t.TenantID).Scan(&storedState, &storedParent)
	if err == sql.ErrNoRows {
		return &NotFoundError{TaskID: t.ID}
	}
	if err != nil {
		return fmt.Errorf("failed to load task state: %w", err)
	}

	from := State(storedState)
	if from != t.State && !from.CanTransitionTo(t.State) {
		return &StateTransitionError{TaskID: t.ID, From: from, To: t.State}
	}
	if storedParent != t.ParentTaskID {
		return fmt.Errorf("task %s: parent_task_id cannot change", t.ID)
	}

	messagesJSON, artifactsJSON, err := encodeTaskBlobs(t)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`
UPDATE tasks SET state = ?, messages = ?, artifacts = ?, error = ?, skill_name = ?, updated_at = ?
WHERE id = ? AND tenant_id = ?`),
		string(t.State), messagesJSON, artifactsJSON, t.Error, t.SkillName,
		t.UpdatedAt.UTC(), t.ID, t.TenantID,
	); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return tx.Commit()
}

func (r *SQLRepository) Delete(ctx context.Context, tenantID, taskID string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(
		`DELETE FROM tasks WHERE id = ? AND tenant_id = ?`), taskID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{TaskID: taskID}
	}
	return nil
}

func (r *SQLRepository) ListByAgent(ctx context.Context, tenantID, agentID string, limit int) ([]*Task, error) {
	return r.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = ? AND agent_id = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, agentID, normalizeLimit(limit))
}

func (r *SQLRepository) ListByParent(ctx context.Context, tenantID, parentID string, limit int) ([]*Task, error) {
	return r.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = ? AND parent_task_id = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, parentID, normalizeLimit(limit))
}

func (r *SQLRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*Task, error) {
	return r.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		tenantID, normalizeLimit(limit), offset)
}

func (r *SQLRepository) ListBySkill(ctx context.Context, tenantID, skillName string, limit int) ([]*Task, error) {
	return r.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = ? AND skill_name = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, skillName, normalizeLimit(limit))
}

func (r *SQLRepository) query(ctx context.Context, query string, args ...interface{}) ([]*Task, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func encodeTaskBlobs(t *Task) (messagesJSON, artifactsJSON string, err error) {
	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode messages: %w", err)
	}
	artifacts, err := json.Marshal(t.Artifacts)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode artifacts: %w", err)
	}
	return string(messages), string(artifacts), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t             Task
		userID        sql.NullString
		state         string
		messagesJSON  sql.NullString
		artifactsJSON sql.NullString
		errText       sql.NullString
		parentID      sql.NullString
		skillName     sql.NullString
	)
	if err := row.Scan(&t.ID, &t.AgentID, &t.TenantID, &userID, &state,
		&messagesJSON, &artifactsJSON, &errText, &parentID, &skillName,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.UserID = userID.String
	t.State = State(state)
	t.Error = errText.String
	t.ParentTaskID = parentID.String
	t.SkillName = skillName.String
	if messagesJSON.Valid && messagesJSON.String != "" {
		if err := json.Unmarshal([]byte(messagesJSON.String), &t.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages: %w", err)
		}
	}
	if artifactsJSON.Valid && artifactsJSON.String != "" {
		if err := json.Unmarshal([]byte(artifactsJSON.String), &t.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to decode artifacts: %w", err)
		}
	}
	return &t, nil
}
