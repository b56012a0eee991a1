package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jivehq/jive/internal/model"
)

const workItemColumns = `id, item_type, title, description, status, priority, parent_id,
	dependencies, sequence_number, order_index, progress_percentage, tags,
	acceptance_criteria, metadata, created_at, updated_at, completed_at, vector`

// AddWorkItem inserts a work item and its keyword-index row.
func (s *Store) AddWorkItem(item *model.WorkItem) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := insertWorkItem(tx, item); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ReplaceWorkItem deletes the stored row for item.ID and writes item in a
// single transaction. The store has no in-place update; this is the only way
// to change a row.
func (s *Store) ReplaceWorkItem(item *model.WorkItem) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := deleteWorkItem(tx, item.ID); err != nil {
			return err
		}
		if err := insertWorkItem(tx, item); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// DeleteWorkItem removes a work item and its keyword-index row.
func (s *Store) DeleteWorkItem(id string) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.Exec(`DELETE FROM work_items WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete work item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrWorkItemNotFound
		}
		if _, err := tx.Exec(`DELETE FROM work_items_fts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete fts row: %w", err)
		}
		return tx.Commit()
	})
}

// DeleteWorkItems removes every item matching pred, keyword-index rows
// included, in one transaction. Returns the number of items removed. An empty
// predicate is refused rather than truncating the table.
func (s *Store) DeleteWorkItems(pred Predicate) (int, error) {
	if pred.expr == "" {
		return 0, fmt.Errorf("refusing to delete work items with an empty predicate")
	}
	var n int64
	err := s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.Exec(
			`DELETE FROM work_items_fts WHERE id IN (SELECT id FROM work_items WHERE `+pred.expr+`)`,
			pred.args...,
		); err != nil {
			return fmt.Errorf("failed to delete fts rows: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM work_items WHERE `+pred.expr, pred.args...)
		if err != nil {
			return fmt.Errorf("failed to delete work items: %w", err)
		}
		n, _ = res.RowsAffected()
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// GetWorkItem loads one work item by id.
func (s *Store) GetWorkItem(id string) (*model.WorkItem, error) {
	row := s.db.QueryRow(`SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrWorkItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query work item: %w", err)
	}
	return item, nil
}

// ListWorkItems returns items matching opts. With zero options it returns
// every item ordered by order_index then creation time.
func (s *Store) ListWorkItems(opts ListOptions) ([]*model.WorkItem, error) {
	if opts.OrderBy == "" {
		opts.OrderBy = "order_index, created_at"
	}
	clauses, args := opts.compile()

	rows, err := s.db.Query(`SELECT `+workItemColumns+` FROM work_items`+clauses, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*model.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountWorkItems returns the number of items matching pred. A zero predicate
// counts everything.
func (s *Store) CountWorkItems(pred Predicate) (int, error) {
	query := "SELECT COUNT(*) FROM work_items"
	if pred.expr != "" {
		query += " WHERE " + pred.expr
	}
	var n int
	if err := s.db.QueryRow(query, pred.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count work items: %w", err)
	}
	return n, nil
}

func insertWorkItem(tx *sql.Tx, item *model.WorkItem) error {
	deps, err := marshalStrings(item.Dependencies)
	if err != nil {
		return err
	}
	tags, err := marshalStrings(item.Tags)
	if err != nil {
		return err
	}
	criteria, err := marshalStrings(item.AcceptanceCriteria)
	if err != nil {
		return err
	}

	metadata := item.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	var parentID sql.NullString
	if item.ParentID != nil {
		parentID = sql.NullString{String: *item.ParentID, Valid: true}
	}
	var completedAt sql.NullTime
	if item.CompletedAt != nil {
		completedAt = sql.NullTime{Time: item.CompletedAt.UTC(), Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO work_items (`+workItemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.ItemType), item.Title, item.Description,
		string(item.Status), string(item.Priority), parentID,
		deps, item.SequenceNumber, item.OrderIndex, item.ProgressPercentage,
		tags, criteria, metadata,
		item.CreatedAt.UTC(), item.UpdatedAt.UTC(), completedAt,
		encodeVector(item.Vector),
	)
	if err != nil {
		return fmt.Errorf("failed to insert work item: %w", err)
	}

	criteriaText := joinForIndex(item.AcceptanceCriteria)
	_, err = tx.Exec(`
		INSERT INTO work_items_fts (id, title, description, acceptance_criteria, status, priority, item_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Description, criteriaText,
		string(item.Status), string(item.Priority), string(item.ItemType),
	)
	if err != nil {
		return fmt.Errorf("failed to index work item: %w", err)
	}
	return nil
}

func deleteWorkItem(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM work_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete work item: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM work_items_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete fts row: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (*model.WorkItem, error) {
	var item model.WorkItem
	var itemType, status, priority string
	var parentID sql.NullString
	var completedAt sql.NullTime
	var deps, tags, criteria string
	var vector []byte

	err := row.Scan(
		&item.ID, &itemType, &item.Title, &item.Description, &status, &priority,
		&parentID, &deps, &item.SequenceNumber, &item.OrderIndex,
		&item.ProgressPercentage, &tags, &criteria, &item.Metadata,
		&item.CreatedAt, &item.UpdatedAt, &completedAt, &vector,
	)
	if err != nil {
		return nil, err
	}

	item.ItemType = model.ItemType(itemType)
	item.Status = model.Status(status)
	item.Priority = model.Priority(priority)
	if parentID.Valid {
		p := parentID.String
		item.ParentID = &p
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		item.CompletedAt = &t
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	item.Vector = decodeVector(vector)

	if item.Dependencies, err = unmarshalStrings(deps); err != nil {
		return nil, fmt.Errorf("corrupt dependencies column for %s: %w", item.ID, err)
	}
	if item.Tags, err = unmarshalStrings(tags); err != nil {
		return nil, fmt.Errorf("corrupt tags column for %s: %w", item.ID, err)
	}
	if item.AcceptanceCriteria, err = unmarshalStrings(criteria); err != nil {
		return nil, fmt.Errorf("corrupt acceptance_criteria column for %s: %w", item.ID, err)
	}
	return &item, nil
}

func marshalStrings(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, err
	}
	if vals == nil {
		vals = []string{}
	}
	return vals, nil
}

func joinForIndex(vals []string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += " "
		}
		out += v
	}
	return out
}
