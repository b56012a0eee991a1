package mcp

import (
	"context"
	"path/filepath"

	"github.com/jivehq/jive/internal/audit"
	"github.com/jivehq/jive/internal/syncdata"
	"github.com/jivehq/jive/internal/validation"
)

// SyncParams is the unified params struct for jive_sync_data.
type SyncParams struct {
	Action string `json:"action,omitempty" description:"sync (default), backup, restore, validate, or regenerate_sequence_numbers"`

	// For sync and validate.
	FilePath      string `json:"file_path,omitempty" description:"Sync file; defaults to <sync_dir>/<namespace>.<format>"`
	Format        string `json:"format,omitempty" description:"json, yaml, markdown, or csv"`
	Direction     string `json:"direction,omitempty" description:"db_to_file, file_to_db, or bidirectional (default)"`
	MergeStrategy string `json:"merge_strategy,omitempty" description:"overwrite, merge (default), or skip"`

	// For backup and restore.
	BackupID      string `json:"backup_id,omitempty" description:"Snapshot to restore; empty picks the newest"`
	AllNamespaces bool   `json:"all_namespaces,omitempty" description:"Back up every namespace instead of just this one"`
	ListOnly      bool   `json:"list_only,omitempty" description:"List available snapshots instead of creating one"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

var syncActions = []string{"sync", "backup", "restore", "validate", "regenerate_sequence_numbers"}

func (s *Server) handleSync(ctx context.Context, call *ToolCall, p SyncParams) *Result {
	action := p.Action
	if action == "" {
		action = "sync"
	}

	switch action {
	case "sync":
		return s.syncRun(ctx, call, p)
	case "backup":
		return s.syncBackup(ctx, call, p)
	case "restore":
		return s.syncRestore(ctx, call, p)
	case "validate":
		return s.syncValidate(ctx, call, p)
	case "regenerate_sequence_numbers":
		return s.syncRegenerate(call)
	default:
		return badAction("jive_sync_data", p.Action, syncActions)
	}
}

func (s *Server) syncRun(ctx context.Context, call *ToolCall, p SyncParams) *Result {
	path, err := s.resolveSyncPath(p.FilePath)
	if err != nil {
		return fail(CodeValidation, "invalid file_path: %v", err)
	}
	req := syncdata.SyncRequest{
		Namespace: call.Namespace,
		FilePath:  path,
		Direction: syncdata.Direction(p.Direction),
		Strategy:  syncdata.MergeStrategy(p.MergeStrategy),
	}
	if p.Format != "" {
		format, err := syncdata.ParseFormat(p.Format)
		if err != nil {
			return fail(CodeValidation, "%v", err)
		}
		req.Format = format
	}

	report, err := s.syncer.Sync(ctx, call.Store, req)
	if err != nil {
		return failErr(err)
	}
	if report.Inserted+report.Updated > 0 {
		auditCall(ctx, call, &audit.Event{
			Operation: audit.OpSyncImport,
			Success:   true,
			Details: map[string]any{
				"file":     report.FilePath,
				"inserted": report.Inserted,
				"updated":  report.Updated,
			},
		})
	}
	s.refreshItemGauge(call)
	switch report.Direction {
	case syncdata.DirectionToFile:
		return okMsg(report, "Exported %d item(s) to %s", report.Exported, report.FilePath)
	case syncdata.DirectionToDB:
		return okMsg(report, "Applied %s: %d inserted, %d updated, %d skipped",
			report.FilePath, report.Inserted, report.Updated, report.Skipped)
	default:
		return okMsg(report, "Synced %s both ways: %d inserted, %d updated, %d exported",
			report.FilePath, report.Inserted, report.Updated, report.Exported)
	}
}

func (s *Server) syncBackup(ctx context.Context, call *ToolCall, p SyncParams) *Result {
	if p.ListOnly {
		snaps, err := s.backups.List(call.Namespace)
		if err != nil {
			return failErr(err)
		}
		return okMsg(map[string]any{"backups": snaps, "total": len(snaps)},
			"Found %d backup(s) for %s", len(snaps), call.Namespace)
	}
	if p.AllNamespaces {
		if err := s.backups.BackupAll(); err != nil {
			return failErr(err)
		}
		snaps, err := s.backups.List("")
		if err != nil {
			return failErr(err)
		}
		return okMsg(map[string]any{"backups": snaps, "total": len(snaps)},
			"Backed up all namespaces")
	}
	snap, err := s.backups.Backup(call.Namespace)
	if err != nil {
		return failErr(err)
	}
	auditCall(ctx, call, &audit.Event{
		Operation: audit.OpBackupCreate,
		BackupID:  snap.ID,
		Success:   true,
		Details:   map[string]any{"items": snap.Items, "size_bytes": snap.SizeBytes},
	})
	return okMsg(snap, "Created backup %s (%d item(s))", snap.ID, snap.Items)
}

// syncRestore unpacks a snapshot over the namespace. The restore closes the
// live store, so the gauge refresh reopens it afterwards.
func (s *Server) syncRestore(ctx context.Context, call *ToolCall, p SyncParams) *Result {
	snap, err := s.backups.Restore(call.Namespace, p.BackupID)
	if err != nil {
		auditCall(ctx, call, &audit.Event{
			Operation: audit.OpBackupRestore,
			BackupID:  p.BackupID,
			Error:     err.Error(),
		})
		return failErr(err)
	}
	auditCall(ctx, call, &audit.Event{
		Operation: audit.OpBackupRestore,
		BackupID:  snap.ID,
		Success:   true,
		Details:   map[string]any{"items": snap.Items},
	})
	if store, serr := s.namespaces.Store(call.Namespace); serr == nil {
		call.Store = store
		s.refreshItemGauge(call)
	}
	return okMsg(snap, "Restored %s from backup %s", snap.Namespace, snap.ID)
}

func (s *Server) syncValidate(ctx context.Context, call *ToolCall, p SyncParams) *Result {
	path, err := s.resolveSyncPath(p.FilePath)
	if err != nil {
		return fail(CodeValidation, "invalid file_path: %v", err)
	}
	report, err := s.syncer.ValidateData(ctx, call.Store, s.engine, call.Namespace, path)
	if err != nil {
		return failErr(err)
	}
	if report.InSync && report.Hierarchy.IsValid {
		return okMsg(report, "Data is consistent: %d item(s) in store, file in sync", report.StoreItems)
	}
	return okMsg(report, "Data has drift: file=%d store=%d hierarchy_valid=%t",
		report.FileItems, report.StoreItems, report.Hierarchy.IsValid)
}

// resolveSyncPath confines a caller-supplied sync path to the sync directory.
// An empty path stays empty so the syncer derives the per-namespace default.
func (s *Server) resolveSyncPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	clean, err := validation.SanitizeRelPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.syncer.Dir(), filepath.FromSlash(clean)), nil
}

func (s *Server) syncRegenerate(call *ToolCall) *Result {
	report, err := s.engine.Regenerate(call.Store)
	if err != nil {
		return failErr(err)
	}
	return okMsg(report, "Regenerated sequence numbers: %d of %d item(s) updated",
		report.Updated, report.Total)
}
