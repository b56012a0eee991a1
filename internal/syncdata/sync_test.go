package syncdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
	"github.com/jivehq/jive/internal/workitem"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSyncer(t *testing.T) (*Syncer, *workitem.Engine) {
	t.Helper()
	embedder := embedding.NewLocal(model.EmbeddingDim)
	return NewSyncer(filepath.Join(t.TempDir(), "sync"), FormatJSON, embedder), workitem.NewEngine(embedder)
}

func seedItems(t *testing.T, engine *workitem.Engine, store *storage.Store) []*model.WorkItem {
	t.Helper()
	ctx := context.Background()

	root, err := engine.Create(ctx, store, workitem.CreateRequest{
		Type:        model.TypeEpic,
		Title:       "Payment rework",
		Description: "Replace the legacy gateway",
		Priority:    model.PriorityHigh,
		Tags:        []string{"payments", "q3"},
		Metadata:    `{"team":"billing"}`,
	})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	child, err := engine.Create(ctx, store, workitem.CreateRequest{
		Type:               model.TypeFeature,
		Title:              "Tokenised cards",
		Description:        "Store tokens instead of PANs",
		ParentID:           &root.ID,
		AcceptanceCriteria: []string{"no raw PANs at rest"},
	})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	other, err := engine.Create(ctx, store, workitem.CreateRequest{
		Type:         model.TypeTask,
		Title:        "Rotate gateway keys",
		Dependencies: []string{root.ID},
	})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	return []*model.WorkItem{root, child, other}
}

func sameItem(t *testing.T, want, got *model.WorkItem) {
	t.Helper()
	if got.ID != want.ID || got.ItemType != want.ItemType || got.Title != want.Title {
		t.Errorf("identity differs: got %s/%s/%q want %s/%s/%q",
			got.ID, got.ItemType, got.Title, want.ID, want.ItemType, want.Title)
	}
	if got.Description != want.Description || got.Status != want.Status || got.Priority != want.Priority {
		t.Errorf("item %s: description/status/priority differ", want.ID)
	}
	if got.Parent() != want.Parent() {
		t.Errorf("item %s: parent = %q, want %q", want.ID, got.Parent(), want.Parent())
	}
	if got.SequenceNumber != want.SequenceNumber || got.OrderIndex != want.OrderIndex {
		t.Errorf("item %s: sequence = %s/%d, want %s/%d",
			want.ID, got.SequenceNumber, got.OrderIndex, want.SequenceNumber, want.OrderIndex)
	}
	if got.ProgressPercentage != want.ProgressPercentage || got.Metadata != want.Metadata {
		t.Errorf("item %s: progress/metadata differ", want.ID)
	}
	if len(got.Tags) != len(want.Tags) || len(got.Dependencies) != len(want.Dependencies) ||
		len(got.AcceptanceCriteria) != len(want.AcceptanceCriteria) {
		t.Errorf("item %s: collections differ", want.ID)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("item %s: timestamps differ: %v/%v vs %v/%v",
			want.ID, got.CreatedAt, got.UpdatedAt, want.CreatedAt, want.UpdatedAt)
	}
}

func TestSyncRoundTripJSON(t *testing.T) {
	syncer, engine := newTestSyncer(t)
	ctx := context.Background()

	source := newTestStore(t)
	seedItems(t, engine, source)

	report, err := syncer.Sync(ctx, source, SyncRequest{Namespace: "roundtrip", Direction: DirectionToFile})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if report.Exported != 3 {
		t.Fatalf("exported = %d, want 3", report.Exported)
	}
	if report.Checksum == "" {
		t.Error("export produced no checksum")
	}

	target := newTestStore(t)
	applied, err := syncer.Sync(ctx, target, SyncRequest{
		Namespace: "roundtrip",
		Direction: DirectionToDB,
		Strategy:  MergeOverwrite,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.Inserted != 3 || applied.Failed != 0 {
		t.Fatalf("apply report: %+v", applied)
	}

	want, err := source.ListWorkItems(storage.ListOptions{})
	if err != nil {
		t.Fatalf("list source: %v", err)
	}
	for _, item := range want {
		got, err := target.GetWorkItem(item.ID)
		if err != nil {
			t.Fatalf("target missing %s: %v", item.ID, err)
		}
		sameItem(t, item, got)
	}
}

func TestSyncFormats(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatMarkdown, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			syncer, engine := newTestSyncer(t)
			ctx := context.Background()

			source := newTestStore(t)
			seedItems(t, engine, source)

			if _, err := syncer.Sync(ctx, source, SyncRequest{
				Namespace: "fmt", Format: format, Direction: DirectionToFile,
			}); err != nil {
				t.Fatalf("export: %v", err)
			}

			target := newTestStore(t)
			report, err := syncer.Sync(ctx, target, SyncRequest{
				Namespace: "fmt", Format: format, Direction: DirectionToDB, Strategy: MergeOverwrite,
			})
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if report.Inserted != 3 || report.Failed != 0 {
				t.Fatalf("apply report: %+v", report)
			}

			want, _ := source.ListWorkItems(storage.ListOptions{})
			for _, item := range want {
				got, err := target.GetWorkItem(item.ID)
				if err != nil {
					t.Fatalf("target missing %s: %v", item.ID, err)
				}
				if got.Title != item.Title || got.Description != item.Description ||
					got.SequenceNumber != item.SequenceNumber || got.Status != item.Status {
					t.Errorf("item %s did not survive %s round trip", item.ID, format)
				}
			}
		})
	}
}

func TestMergeStrategies(t *testing.T) {
	syncer, engine := newTestSyncer(t)
	ctx := context.Background()

	source := newTestStore(t)
	items := seedItems(t, engine, source)

	if _, err := syncer.Sync(ctx, source, SyncRequest{Namespace: "merge", Direction: DirectionToFile}); err != nil {
		t.Fatalf("export: %v", err)
	}

	// Local edit after the export: merge must preserve it, overwrite must not.
	title := "Rename kept locally"
	if _, err := engine.Update(ctx, source, workitem.UpdateRequest{Ref: items[0].ID, Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}

	report, err := syncer.Sync(ctx, source, SyncRequest{
		Namespace: "merge", Direction: DirectionToDB, Strategy: MergeMerge,
	})
	if err != nil {
		t.Fatalf("merge apply: %v", err)
	}
	if report.Updated != 0 || report.Skipped != 3 {
		t.Fatalf("merge report: %+v", report)
	}
	kept, _ := source.GetWorkItem(items[0].ID)
	if kept.Title != title {
		t.Errorf("merge overwrote the newer local title: %q", kept.Title)
	}

	report, err = syncer.Sync(ctx, source, SyncRequest{
		Namespace: "merge", Direction: DirectionToDB, Strategy: MergeOverwrite,
	})
	if err != nil {
		t.Fatalf("overwrite apply: %v", err)
	}
	if report.Updated != 3 {
		t.Fatalf("overwrite report: %+v", report)
	}
	reverted, _ := source.GetWorkItem(items[0].ID)
	if reverted.Title != "Payment rework" {
		t.Errorf("overwrite kept the local title: %q", reverted.Title)
	}
}

func TestMergeSkipInsertsOnlyNewItems(t *testing.T) {
	syncer, engine := newTestSyncer(t)
	ctx := context.Background()

	store := newTestStore(t)
	items := seedItems(t, engine, store)

	if _, err := syncer.Sync(ctx, store, SyncRequest{Namespace: "skip", Direction: DirectionToFile}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := store.DeleteWorkItem(items[2].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	report, err := syncer.Sync(ctx, store, SyncRequest{
		Namespace: "skip", Direction: DirectionToDB, Strategy: MergeSkip,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Inserted != 1 || report.Skipped != 2 {
		t.Fatalf("skip report: %+v", report)
	}
	if _, err := store.GetWorkItem(items[2].ID); err != nil {
		t.Errorf("deleted item not restored: %v", err)
	}
}

func TestApplyReportsBadItems(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	store := newTestStore(t)

	file := filepath.Join(syncer.Dir(), "bad.json")
	if err := os.MkdirAll(syncer.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	payload := `{
  "namespace": "bad",
  "items": [
    {"id": "", "item_type": "task", "title": "No id"},
    {"id": "x1", "item_type": "sprint", "title": "Bad type"},
    {"id": "x2", "item_type": "task", "title": "Fine", "status": "not_started", "priority": "medium"}
  ]
}`
	if err := os.WriteFile(file, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := syncer.Sync(context.Background(), store, SyncRequest{
		Namespace: "bad", FilePath: file, Direction: DirectionToDB, Strategy: MergeOverwrite,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Failed != 2 || report.Inserted != 1 {
		t.Fatalf("report: %+v", report)
	}
	var failures int
	for _, item := range report.Items {
		if item.Action == "failed" && item.Error != "" {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("failed outcomes = %d, want 2 with messages", failures)
	}
}

func TestBidirectionalSeedsMissingFile(t *testing.T) {
	syncer, engine := newTestSyncer(t)
	ctx := context.Background()

	store := newTestStore(t)
	seedItems(t, engine, store)

	report, err := syncer.Sync(ctx, store, SyncRequest{Namespace: "seed"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Exported != 3 || report.Inserted != 0 {
		t.Fatalf("report: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(syncer.Dir(), "seed.json")); err != nil {
		t.Errorf("sync file missing: %v", err)
	}
}

func TestSyncHistory(t *testing.T) {
	syncer, engine := newTestSyncer(t)
	ctx := context.Background()

	store := newTestStore(t)
	seedItems(t, engine, store)

	before := time.Now()
	if _, err := syncer.Sync(ctx, store, SyncRequest{Namespace: "hist", Direction: DirectionToFile}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	entries := syncer.History()
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Checksum == "" || entry.Items != 3 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.SyncedAt.Before(before.Add(-time.Second)) {
		t.Errorf("synced_at = %v", entry.SyncedAt)
	}

	// A second run replaces the entry instead of appending.
	if _, err := syncer.Sync(ctx, store, SyncRequest{Namespace: "hist", Direction: DirectionToFile}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(syncer.History()) != 1 {
		t.Errorf("history grew on resync")
	}
}

func TestValidateData(t *testing.T) {
	syncer, engine := newTestSyncer(t)
	ctx := context.Background()

	store := newTestStore(t)
	seedItems(t, engine, store)

	if _, err := syncer.Sync(ctx, store, SyncRequest{Namespace: "val", Direction: DirectionToFile}); err != nil {
		t.Fatalf("export: %v", err)
	}

	report, err := syncer.ValidateData(ctx, store, engine, "val", "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.FileExists || !report.InSync || report.FileItems != 3 || report.StoreItems != 3 {
		t.Fatalf("report: %+v", report)
	}
	if report.Hierarchy == nil || !report.Hierarchy.IsValid {
		t.Errorf("hierarchy report: %+v", report.Hierarchy)
	}

	// Drift: one more item in the store than in the file.
	if _, err := engine.Create(ctx, store, workitem.CreateRequest{Type: model.TypeTask, Title: "Drift"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	report, err = syncer.ValidateData(ctx, store, engine, "val", "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.InSync || report.StoreItems != 4 {
		t.Errorf("drift not detected: %+v", report)
	}
}
