package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/sjson"
	_ "modernc.org/sqlite" // Pure Go driver, CGO-free, compatible with CGO_ENABLED=0

	"review-orchestrator/internal/cadence"
	"review-orchestrator/internal/domain"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS executions (
        id         TEXT PRIMARY KEY,
        org_id     TEXT NOT NULL,
        repo_id    TEXT NOT NULL,
        pr_number  INTEGER NOT NULL,
        commit_sha TEXT,
        status     TEXT NOT NULL,
        origin     TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_executions_pr ON executions(org_id, repo_id, pr_number, created_at);

    CREATE TABLE IF NOT EXISTS cadence_state (
        org_id     TEXT NOT NULL,
        repo_id    TEXT NOT NULL,
        pr_number  INTEGER NOT NULL,
        state      TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (org_id, repo_id, pr_number)
    );

    CREATE TABLE IF NOT EXISTS suggestions (
        id              TEXT PRIMARY KEY,
        org_id          TEXT NOT NULL,
        repo_id         TEXT NOT NULL,
        pr_number       INTEGER NOT NULL,
        commit_sha      TEXT,
        data            TEXT NOT NULL,
        priority_status TEXT,
        delivery_status TEXT,
        created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_suggestions_pr ON suggestions(org_id, repo_id, pr_number);
    `
	_, err := db.Exec(schema)
	return err
}

func (r *SQLiteRepository) SaveExecution(ctx context.Context, exec *domain.AutomationExecution) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO executions (id, org_id, repo_id, pr_number, commit_sha, status, origin, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, exec.ID, exec.Org.OrganizationID, exec.RepoID, exec.PRNumber, exec.CommitSHA,
		exec.Status, string(exec.Origin), exec.CreatedAt)
	return err
}

func (r *SQLiteRepository) LastExecution(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (*domain.AutomationExecution, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, commit_sha, status, origin, created_at
        FROM executions
        WHERE org_id = ? AND repo_id = ? AND pr_number = ?
        ORDER BY created_at DESC
        LIMIT 1
    `, org.OrganizationID, repoID, prNumber)

	exec := &domain.AutomationExecution{Org: org, RepoID: repoID, PRNumber: prNumber}
	var origin string
	err := row.Scan(&exec.ID, &exec.CommitSHA, &exec.Status, &origin, &exec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	exec.Origin = domain.TriggerOrigin(origin)
	return exec, nil
}

func (r *SQLiteRepository) HasPriorExecution(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(1) FROM executions
        WHERE org_id = ? AND repo_id = ? AND pr_number = ?
    `, org.OrganizationID, repoID, prNumber).Scan(&count)
	return count > 0, err
}

func (r *SQLiteRepository) CountSuccessfulExecutionsSince(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(1) FROM executions
        WHERE org_id = ? AND repo_id = ? AND pr_number = ? AND status = ? AND created_at >= ?
    `, org.OrganizationID, repoID, prNumber, domain.ExecutionStatusSuccess, since).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) GetCadenceState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (cadence.State, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `
        SELECT state FROM cadence_state
        WHERE org_id = ? AND repo_id = ? AND pr_number = ?
    `, org.OrganizationID, repoID, prNumber).Scan(&state)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return cadence.State(state), err
}

func (r *SQLiteRepository) SetCadenceState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, state cadence.State) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO cadence_state (org_id, repo_id, pr_number, state, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(org_id, repo_id, pr_number) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
    `, org.OrganizationID, repoID, prNumber, string(state), time.Now())
	return err
}

func (r *SQLiteRepository) SaveSuggestions(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, commitSHA string, suggestions []domain.CodeSuggestion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO suggestions (id, org_id, repo_id, pr_number, commit_sha, data, priority_status, delivery_status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            data = excluded.data,
            priority_status = excluded.priority_status,
            delivery_status = excluded.delivery_status
    `)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, s := range suggestions {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal suggestion %s: %w", s.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.ID, org.OrganizationID, repoID, prNumber, commitSHA,
			string(data), string(s.PriorityStatus), string(s.DeliveryStatus), now); err != nil {
			return fmt.Errorf("insert suggestion %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// UpdateDeliveryStatus stamps a new delivery status on both the indexed
// column and the stored JSON blob, so readers of either stay consistent.
func (r *SQLiteRepository) UpdateDeliveryStatus(ctx context.Context, suggestionID string, status domain.DeliveryStatus) error {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM suggestions WHERE id = ?`, suggestionID).Scan(&data)
	if err != nil {
		return fmt.Errorf("load suggestion %s: %w", suggestionID, err)
	}

	data, err = sjson.Set(data, "deliveryStatus", string(status))
	if err != nil {
		return fmt.Errorf("stamp delivery status: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
        UPDATE suggestions SET data = ?, delivery_status = ? WHERE id = ?
    `, data, string(status), suggestionID)
	return err
}

func (r *SQLiteRepository) ListSuggestionsByPR(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) ([]SuggestionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT data, commit_sha, created_at
        FROM suggestions
        WHERE org_id = ? AND repo_id = ? AND pr_number = ?
        ORDER BY created_at DESC, id
    `, org.OrganizationID, repoID, prNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SuggestionRecord
	for rows.Next() {
		var data, commitSHA string
		var createdAt time.Time
		if err := rows.Scan(&data, &commitSHA, &createdAt); err != nil {
			slog.Warn("scan suggestion failed", "error", err)
			continue
		}

		var s domain.CodeSuggestion
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			slog.Warn("unmarshal suggestion failed", "error", err)
			continue
		}
		records = append(records, SuggestionRecord{
			Suggestion: s,
			RepoID:     repoID,
			PRNumber:   prNumber,
			CommitSHA:  commitSHA,
			CreatedAt:  createdAt,
		})
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
