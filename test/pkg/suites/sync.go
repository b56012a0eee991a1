package suites

import (
	"fmt"
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// uniqueNamespace returns a fresh namespace label so sync files, backups, and
// item counts stay deterministic regardless of what earlier runs left behind.
func uniqueNamespace(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// withNamespace copies params and pins them to ns.
func withNamespace(ns string, params map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{"namespace": ns}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// createInNamespace creates a work item inside ns. The ids are not tracked by
// the context cleanup, which only targets the session's namespace; callers
// delete them in their teardown.
func createInNamespace(ctx *testpkg.TestContext, ns, itemType, title string) (string, error) {
	env, err := ctx.Invoke("jive_manage_work_item", withNamespace(ns, map[string]interface{}{
		"action": "create",
		"type":   itemType,
		"title":  title,
	}))
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", fmt.Errorf("create in %s failed: %s", ns, env.Error)
	}
	id := testpkg.ExtractWorkItemID(env)
	if id == "" {
		return "", fmt.Errorf("create in %s returned no id", ns)
	}
	return id, nil
}

// deleteInNamespace removes one item from ns, tolerating not-found.
func deleteInNamespace(ctx *testpkg.TestContext, ns, id string) {
	if id == "" {
		return
	}
	_, _ = ctx.Invoke("jive_manage_work_item", withNamespace(ns, map[string]interface{}{
		"action":          "delete",
		"work_item_id":    id,
		"delete_children": true,
	}))
}

type syncReport struct {
	Namespace string `json:"namespace"`
	FilePath  string `json:"file_path"`
	Format    string `json:"format"`
	Direction string `json:"direction"`
	Exported  int    `json:"exported"`
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Checksum  string `json:"checksum"`
}

type dataReport struct {
	FileExists bool `json:"file_exists"`
	FileItems  int  `json:"file_items"`
	StoreItems int  `json:"store_items"`
	InSync     bool `json:"in_sync"`
	Hierarchy  struct {
		IsValid bool `json:"is_valid"`
	} `json:"hierarchy"`
}

type backupSnapshot struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
	Items     int    `json:"items"`
}

// GetSyncTests returns tests for jive_sync_data: file export/import, drift
// validation, backups, and sequence regeneration.
func GetSyncTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_sync_export_import",
			Description: "Export a namespace to its sync file, detect drift, and re-import a deleted item",
			Tags:        []string{"sync", "smoke"},
			Covers:      []string{"sync:export", "sync:import", "sync:validate"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ns := uniqueNamespace("jive-sync")
				first, err := createInNamespace(ctx, ns, "task", "Wire up the payment webhook")
				if err != nil {
					return err
				}
				defer deleteInNamespace(ctx, ns, first)
				second, err := createInNamespace(ctx, ns, "task", "Document the webhook retries")
				if err != nil {
					return err
				}
				defer deleteInNamespace(ctx, ns, second)

				env, err := ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action":    "sync",
					"direction": "db_to_file",
					"format":    "json",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "export should succeed")
				var report syncReport
				if err := env.DataAs(&report); err != nil {
					return fmt.Errorf("export report: %w", err)
				}
				ctx.Assertions.AssertEqual(2, report.Exported, "export writes every item")
				ctx.Assertions.AssertEqual("db_to_file", report.Direction, "direction echoed")
				ctx.Assertions.AssertContains(report.FilePath, ns, "sync file is named after the namespace")
				ctx.Assertions.AssertNotEmpty(report.Checksum, "export records a checksum")

				env, err = ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action": "validate",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "validate should succeed")
				var clean dataReport
				if err := env.DataAs(&clean); err != nil {
					return fmt.Errorf("validate report: %w", err)
				}
				ctx.Assertions.AssertTrue(clean.FileExists, "sync file exists after export")
				ctx.Assertions.AssertTrue(clean.InSync, "fresh export matches the store")
				ctx.Assertions.AssertEqual(2, clean.FileItems, "file holds both items")
				ctx.Assertions.AssertEqual(2, clean.StoreItems, "store holds both items")
				ctx.Assertions.AssertTrue(clean.Hierarchy.IsValid, "hierarchy is valid")

				// Deleting one item drifts the store away from the file.
				env, err = ctx.Invoke("jive_manage_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "delete",
					"work_item_id": first,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "delete should succeed")

				env, err = ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action": "validate",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "validate after drift should still succeed")
				var drifted dataReport
				if err := env.DataAs(&drifted); err != nil {
					return fmt.Errorf("drift report: %w", err)
				}
				ctx.Assertions.AssertFalse(drifted.InSync, "deleting an item makes the file stale")
				ctx.Assertions.AssertEqual(1, drifted.StoreItems, "store dropped to one item")
				ctx.Assertions.AssertEqual(2, drifted.FileItems, "file still holds the exported pair")

				// Importing the file resurrects the deleted item and leaves
				// the untouched one alone.
				env, err = ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action":    "sync",
					"direction": "file_to_db",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "import should succeed")
				var applied syncReport
				if err := env.DataAs(&applied); err != nil {
					return fmt.Errorf("import report: %w", err)
				}
				ctx.Assertions.AssertEqual(1, applied.Inserted, "deleted item comes back")
				ctx.Assertions.AssertEqual(1, applied.Skipped, "surviving item is not rewritten")
				ctx.Assertions.AssertEqual(0, applied.Failed, "no item fails to apply")

				env, err = ctx.Invoke("jive_get_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "get",
					"work_item_id": first,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "re-imported item is readable again")
				return nil
			},
		},
		{
			Name:        "test_sync_rejects_bad_arguments",
			Description: "Unknown direction, format, and merge strategy all fail validation",
			Tags:        []string{"sync", "validation"},
			Covers:      []string{"sync:validation"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				env, err := ctx.Invoke("jive_sync_data", map[string]interface{}{
					"action":    "sync",
					"direction": "sideways",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "unknown direction is rejected")

				env, err = ctx.Invoke("jive_sync_data", map[string]interface{}{
					"action": "sync",
					"format": "toml",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "unknown format is rejected")

				env, err = ctx.Invoke("jive_sync_data", map[string]interface{}{
					"action":         "sync",
					"merge_strategy": "theirs",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "unknown merge strategy is rejected")

				env, err = ctx.Invoke("jive_sync_data", map[string]interface{}{
					"action":    "sync",
					"file_path": "../../etc/passwd",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "path escape is rejected")
				return nil
			},
		},
		{
			Name:        "test_backup_restore_cycle",
			Description: "Back up a namespace, delete an item, and restore it from the snapshot",
			Tags:        []string{"sync", "backup"},
			Covers:      []string{"sync:backup", "sync:restore"},
			Timeout:     90 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ns := uniqueNamespace("jive-backup")
				keep, err := createInNamespace(ctx, ns, "task", "Rotate the signing keys")
				if err != nil {
					return err
				}
				defer deleteInNamespace(ctx, ns, keep)
				lost, err := createInNamespace(ctx, ns, "task", "Archive the old signing keys")
				if err != nil {
					return err
				}
				defer deleteInNamespace(ctx, ns, lost)

				env, err := ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action": "backup",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "backup should succeed")
				var snap backupSnapshot
				if err := env.DataAs(&snap); err != nil {
					return fmt.Errorf("snapshot: %w", err)
				}
				ctx.Assertions.AssertEqual(ns, snap.Namespace, "snapshot belongs to the namespace")
				ctx.Assertions.AssertEqual(2, snap.Items, "snapshot counts both items")
				ctx.Assertions.AssertNotEmpty(snap.ID, "snapshot has an id")
				ctx.Assertions.AssertNotEmpty(snap.SHA256, "snapshot has a checksum")
				ctx.Assertions.AssertGreaterThan(int(snap.SizeBytes), 0, "archive is not empty")

				env, err = ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action":    "backup",
					"list_only": true,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "list should succeed")
				var listing struct {
					Backups []backupSnapshot `json:"backups"`
					Total   int              `json:"total"`
				}
				if err := env.DataAs(&listing); err != nil {
					return fmt.Errorf("backup listing: %w", err)
				}
				ctx.Assertions.AssertGreaterOrEqual(listing.Total, 1, "at least the new snapshot is listed")
				if len(listing.Backups) > 0 {
					ctx.Assertions.AssertEqual(snap.ID, listing.Backups[0].ID, "newest snapshot is first")
				} else {
					ctx.Assertions.Fail("backup listing is empty")
				}

				env, err = ctx.Invoke("jive_manage_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "delete",
					"work_item_id": lost,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "delete before restore should succeed")

				// Empty backup_id restores the newest snapshot.
				env, err = ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action": "restore",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "restore should succeed")
				var restored backupSnapshot
				if err := env.DataAs(&restored); err != nil {
					return fmt.Errorf("restore snapshot: %w", err)
				}
				ctx.Assertions.AssertEqual(snap.ID, restored.ID, "restore picked the snapshot we took")

				env, err = ctx.Invoke("jive_get_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "get",
					"work_item_id": lost,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "restored item is readable again")
				return nil
			},
		},
		{
			Name:        "test_restore_unknown_backup",
			Description: "Restoring a snapshot that does not exist fails with BACKUP_NOT_FOUND",
			Tags:        []string{"sync", "backup", "validation"},
			Covers:      []string{"sync:restore"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				env, err := ctx.Invoke("jive_sync_data", map[string]interface{}{
					"action":    "restore",
					"backup_id": "default_20990101_000000",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "BACKUP_NOT_FOUND", "unknown backup id is rejected")

				// A namespace with no snapshots has no newest backup either.
				env, err = ctx.Invoke("jive_sync_data", withNamespace(uniqueNamespace("jive-nobackup"), map[string]interface{}{
					"action": "restore",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "BACKUP_NOT_FOUND", "namespace without snapshots cannot restore")
				return nil
			},
		},
		{
			Name:        "test_regenerate_sequence_numbers",
			Description: "Regeneration closes the gap a deleted sibling leaves in the outline",
			Tags:        []string{"sync", "sequence"},
			Covers:      []string{"sync:regenerate"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ns := uniqueNamespace("jive-seq")
				var ids []string
				for _, title := range []string{"First pass", "Second pass", "Third pass"} {
					id, err := createInNamespace(ctx, ns, "task", title)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				defer func() {
					for _, id := range ids {
						deleteInNamespace(ctx, ns, id)
					}
				}()

				env, err := ctx.Invoke("jive_manage_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "delete",
					"work_item_id": ids[1],
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "delete middle sibling should succeed")

				env, err = ctx.Invoke("jive_sync_data", withNamespace(ns, map[string]interface{}{
					"action": "regenerate_sequence_numbers",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "regenerate should succeed")
				var report struct {
					Total   int `json:"total"`
					Updated int `json:"updated"`
					Failed  int `json:"failed"`
					Changes []struct {
						ItemID      string `json:"item_id"`
						OldSequence string `json:"old_sequence"`
						NewSequence string `json:"new_sequence"`
					} `json:"changes"`
				}
				if err := env.DataAs(&report); err != nil {
					return fmt.Errorf("regenerate report: %w", err)
				}
				ctx.Assertions.AssertEqual(2, report.Total, "two items survive the delete")
				ctx.Assertions.AssertEqual(1, report.Updated, "only the trailing sibling renumbers")
				ctx.Assertions.AssertEqual(0, report.Failed, "no renumbering failures")
				ctx.Assertions.AssertEqual(1, len(report.Changes), "one change recorded")
				if len(report.Changes) == 1 {
					ctx.Assertions.AssertEqual(ids[2], report.Changes[0].ItemID, "third item moved up")
					ctx.Assertions.AssertEqual("3", report.Changes[0].OldSequence, "old label")
					ctx.Assertions.AssertEqual("2", report.Changes[0].NewSequence, "new label")
				}

				env, err = ctx.Invoke("jive_get_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "get",
					"work_item_id": ids[2],
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "renumbered item is readable")
				var data struct {
					Item struct {
						SequenceNumber string `json:"sequence_number"`
					} `json:"item"`
				}
				if err := env.DataAs(&data); err != nil {
					return fmt.Errorf("item: %w", err)
				}
				ctx.Assertions.AssertEqual("2", data.Item.SequenceNumber, "stored label matches the report")
				return nil
			},
		},
	}
}
