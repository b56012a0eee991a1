package storage

import (
	"database/sql"
	"fmt"

	"github.com/jivehq/jive/internal/model"
)

const executionColumns = `id, work_item_id, action, status, agent_id, details,
	error_message, duration_seconds, timestamp, metadata`

// AppendExecution writes one execution-log record.
func (s *Store) AppendExecution(rec *model.ExecutionRecord) error {
	return s.withRetry(func() error {
		return insertExecution(s.db, rec)
	})
}

// ReplaceExecution rewrites a record by id (delete then insert, matching the
// work-item write path). Used for state transitions.
func (s *Store) ReplaceExecution(rec *model.ExecutionRecord) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.Exec(`DELETE FROM execution_log WHERE id = ?`, rec.ID)
		if err != nil {
			return fmt.Errorf("failed to delete execution record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrExecutionNotFound
		}
		if err := insertExecution(tx, rec); err != nil {
			return err
		}
		return tx.Commit()
	})
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertExecution(db execer, rec *model.ExecutionRecord) error {
	metadata := rec.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	var workItemID sql.NullString
	if rec.WorkItemID != "" {
		workItemID = sql.NullString{String: rec.WorkItemID, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO execution_log (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, workItemID, rec.Action, string(rec.Status),
		rec.AgentID, rec.Details, rec.ErrorMessage,
		rec.DurationSeconds, rec.Timestamp.UTC(), metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// GetExecution loads one execution record by id.
func (s *Store) GetExecution(id string) (*model.ExecutionRecord, error) {
	row := s.db.QueryRow(`SELECT `+executionColumns+` FROM execution_log WHERE id = ?`, id)
	rec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query execution record: %w", err)
	}
	return rec, nil
}

// ListExecutions returns records matching opts, newest first by default.
func (s *Store) ListExecutions(opts ListOptions) ([]*model.ExecutionRecord, error) {
	if opts.OrderBy == "" {
		opts.OrderBy = "timestamp"
		opts.Desc = true
	}
	clauses, args := opts.compile()

	rows, err := s.db.Query(`SELECT `+executionColumns+` FROM execution_log`+clauses, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*model.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountExecutions returns the number of log records matching pred.
func (s *Store) CountExecutions(pred Predicate) (int, error) {
	query := "SELECT COUNT(*) FROM execution_log"
	if pred.expr != "" {
		query += " WHERE " + pred.expr
	}
	var n int
	if err := s.db.QueryRow(query, pred.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count execution log: %w", err)
	}
	return n, nil
}

func scanExecution(row rowScanner) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	var status string
	var workItemID, agentID, details, errorMessage sql.NullString

	err := row.Scan(
		&rec.ID, &workItemID, &rec.Action, &status, &agentID,
		&details, &errorMessage, &rec.DurationSeconds, &rec.Timestamp, &rec.Metadata,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.ExecutionStatus(status)
	rec.WorkItemID = workItemID.String
	rec.AgentID = agentID.String
	rec.Details = details.String
	rec.ErrorMessage = errorMessage.String
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}
