// Package syncdata moves work items between namespace stores and files on
// disk, and owns the backup surface. Sync files live one per namespace in a
// shared directory; the basename picks the namespace, the extension picks the
// format.
package syncdata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
	"github.com/jivehq/jive/internal/workitem"
)

// MergeStrategy decides what happens when a file item already exists in the
// store.
type MergeStrategy string

const (
	// MergeOverwrite replaces the stored item with the file item.
	MergeOverwrite MergeStrategy = "overwrite"
	// MergeMerge replaces only when the file item is strictly newer.
	MergeMerge MergeStrategy = "merge"
	// MergeSkip leaves existing items untouched.
	MergeSkip MergeStrategy = "skip"
)

// Direction selects which side of the sync runs.
type Direction string

const (
	DirectionToFile Direction = "db_to_file"
	DirectionToDB   Direction = "file_to_db"
	// DirectionBoth applies the file first, then exports the merged store.
	DirectionBoth Direction = "bidirectional"
)

var (
	ErrUnknownStrategy  = errors.New("unknown merge strategy")
	ErrUnknownDirection = errors.New("unknown sync direction")
)

// SyncRequest names one sync run. Zero fields fall back to the syncer's
// defaults; an empty FilePath derives <dir>/<namespace>.<ext>.
type SyncRequest struct {
	Namespace string
	FilePath  string
	Format    Format
	Direction Direction
	Strategy  MergeStrategy
}

// ItemOutcome reports what happened to a single file item during apply.
type ItemOutcome struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Error  string `json:"error,omitempty"`
}

const (
	actionInserted = "inserted"
	actionUpdated  = "updated"
	actionSkipped  = "skipped"
	actionFailed   = "failed"
)

// SyncReport aggregates one sync run.
type SyncReport struct {
	Namespace string        `json:"namespace"`
	FilePath  string        `json:"file_path"`
	Format    Format        `json:"format"`
	Direction Direction     `json:"direction"`
	Strategy  MergeStrategy `json:"merge_strategy"`
	Exported  int           `json:"exported"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Items     []ItemOutcome `json:"items,omitempty"`
	Checksum  string        `json:"checksum,omitempty"`
	SyncedAt  time.Time     `json:"synced_at"`
}

// HistoryEntry records the last sync that touched one file.
type HistoryEntry struct {
	FilePath  string    `json:"file_path"`
	Checksum  string    `json:"checksum"`
	Direction Direction `json:"direction"`
	Items     int       `json:"items"`
	SyncedAt  time.Time `json:"synced_at"`
}

// Syncer owns the sync directory and the process-wide sync history.
type Syncer struct {
	dir      string
	format   Format
	embedder embedding.Embedder

	mu      sync.Mutex
	history map[string]HistoryEntry
}

// NewSyncer builds a syncer writing to dir in the given default format.
func NewSyncer(dir string, format Format, embedder embedding.Embedder) *Syncer {
	if format == "" {
		format = FormatJSON
	}
	return &Syncer{
		dir:      dir,
		format:   format,
		embedder: embedder,
		history:  make(map[string]HistoryEntry),
	}
}

// Dir returns the sync directory.
func (s *Syncer) Dir() string { return s.dir }

// Sync runs one file↔db pass against store and records it in the history.
func (s *Syncer) Sync(ctx context.Context, store *storage.Store, req SyncRequest) (*SyncReport, error) {
	format := req.Format
	path := req.FilePath
	if path == "" {
		if format == "" {
			format = s.format
		}
		path = filepath.Join(s.dir, req.Namespace+"."+format.ext())
	} else if format == "" {
		if inferred, ok := formatForPath(path); ok {
			format = inferred
		} else {
			format = s.format
		}
	}

	direction := req.Direction
	if direction == "" {
		direction = DirectionBoth
	}
	switch direction {
	case DirectionToFile, DirectionToDB, DirectionBoth:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDirection, direction)
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = MergeMerge
	}
	switch strategy {
	case MergeOverwrite, MergeMerge, MergeSkip:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	report := &SyncReport{
		Namespace: req.Namespace,
		FilePath:  path,
		Format:    format,
		Direction: direction,
		Strategy:  strategy,
		SyncedAt:  time.Now().UTC(),
	}

	if direction == DirectionToDB || direction == DirectionBoth {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			items, err := decodeItems(format, data)
			if err != nil {
				return nil, err
			}
			s.applyItems(ctx, store, items, strategy, report)
			report.Checksum = checksum(data)
		case os.IsNotExist(err) && direction == DirectionBoth:
			// First run: nothing to apply, the export below seeds the file.
		default:
			return nil, fmt.Errorf("failed to read sync file: %w", err)
		}
	}

	if direction == DirectionToFile || direction == DirectionBoth {
		count, sum, err := s.export(store, path, format, req.Namespace)
		if err != nil {
			return nil, err
		}
		report.Exported = count
		report.Checksum = sum
	}

	s.record(path, report)
	return report, nil
}

func (s *Syncer) applyItems(ctx context.Context, store *storage.Store, items []fileItem, strategy MergeStrategy, report *SyncReport) {
	for _, f := range items {
		outcome := s.applyOne(ctx, store, f, strategy)
		report.Items = append(report.Items, outcome)
		switch outcome.Action {
		case actionInserted:
			report.Inserted++
		case actionUpdated:
			report.Updated++
		case actionSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
}

func (s *Syncer) applyOne(ctx context.Context, store *storage.Store, f fileItem, strategy MergeStrategy) ItemOutcome {
	out := ItemOutcome{ID: f.ID}

	item, err := f.workItem()
	if err != nil {
		out.Action, out.Error = actionFailed, err.Error()
		return out
	}

	existing, err := store.GetWorkItem(item.ID)
	switch {
	case errors.Is(err, storage.ErrWorkItemNotFound):
		// New items are inserted under every strategy.
		s.embed(ctx, item)
		if err := store.AddWorkItem(item); err != nil {
			out.Action, out.Error = actionFailed, err.Error()
			return out
		}
		out.Action = actionInserted
	case err != nil:
		out.Action, out.Error = actionFailed, err.Error()
	default:
		if strategy == MergeSkip {
			out.Action = actionSkipped
			return out
		}
		if strategy == MergeMerge && !item.UpdatedAt.After(existing.UpdatedAt) {
			out.Action = actionSkipped
			return out
		}
		if item.EmbeddingText() == existing.EmbeddingText() {
			item.Vector = existing.Vector
		} else {
			s.embed(ctx, item)
		}
		if err := store.ReplaceWorkItem(item); err != nil {
			out.Action, out.Error = actionFailed, err.Error()
			return out
		}
		out.Action = actionUpdated
	}
	return out
}

func (s *Syncer) embed(ctx context.Context, item *model.WorkItem) {
	if s.embedder == nil {
		return
	}
	vec, err := s.embedder.Embed(ctx, item.EmbeddingText())
	if err != nil {
		logger.Warn("sync: embedding failed for %s: %v", item.ID, err)
		return
	}
	item.Vector = vec
}

func (s *Syncer) export(store *storage.Store, path string, format Format, namespace string) (int, string, error) {
	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return 0, "", fmt.Errorf("failed to list work items: %w", err)
	}
	data, err := encodeItems(format, namespace, items)
	if err != nil {
		return 0, "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, "", fmt.Errorf("failed to create sync directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, "", fmt.Errorf("failed to write sync file: %w", err)
	}
	return len(items), checksum(data), nil
}

func (s *Syncer) record(path string, report *SyncReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[path] = HistoryEntry{
		FilePath:  path,
		Checksum:  report.Checksum,
		Direction: report.Direction,
		Items:     report.Exported + report.Inserted + report.Updated + report.Skipped + report.Failed,
		SyncedAt:  report.SyncedAt,
	}
}

// History returns the sync history sorted by file path.
func (s *Syncer) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]HistoryEntry, 0, len(s.history))
	for _, e := range s.history {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FilePath < entries[j].FilePath })
	return entries
}

// DataReport is the validate result: file/store drift plus the full
// hierarchy validation.
type DataReport struct {
	Namespace  string                     `json:"namespace"`
	FilePath   string                     `json:"file_path"`
	FileExists bool                       `json:"file_exists"`
	FileItems  int                        `json:"file_items"`
	StoreItems int                        `json:"store_items"`
	InSync     bool                       `json:"in_sync"`
	Hierarchy  *workitem.ValidationReport `json:"hierarchy"`
}

// ValidateData compares the sync file against the store and runs the
// hierarchy validator.
func (s *Syncer) ValidateData(ctx context.Context, store *storage.Store, engine *workitem.Engine, namespace, filePath string) (*DataReport, error) {
	format := s.format
	path := filePath
	if path == "" {
		path = filepath.Join(s.dir, namespace+"."+format.ext())
	} else if inferred, ok := formatForPath(path); ok {
		format = inferred
	}

	report := &DataReport{Namespace: namespace, FilePath: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		report.FileExists = true
		items, err := decodeItems(format, data)
		if err != nil {
			return nil, err
		}
		report.FileItems = len(items)
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read sync file: %w", err)
	}

	count, err := store.CountWorkItems(storage.Predicate{})
	if err != nil {
		return nil, err
	}
	report.StoreItems = count

	hierarchy, err := engine.ValidateHierarchy(ctx, store)
	if err != nil {
		return nil, err
	}
	report.Hierarchy = hierarchy
	report.InSync = report.FileExists && report.FileItems == report.StoreItems
	return report, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
