package storage

import (
	"testing"

	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	item := testutil.NewTestItem(t,
		testutil.WithTitle("Implement login"),
		testutil.WithTags("auth", "backend"),
		testutil.WithDependencies("dep-1"),
		testutil.WithVector(0.1, 0.2, 0.3),
	)

	if err := store.AddWorkItem(item); err != nil {
		t.Fatalf("failed to add: %v", err)
	}

	got, err := store.GetWorkItem(item.ID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Title != item.Title {
		t.Errorf("title = %q, want %q", got.Title, item.Title)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "auth" {
		t.Errorf("tags = %v, want [auth backend]", got.Tags)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "dep-1" {
		t.Errorf("dependencies = %v, want [dep-1]", got.Dependencies)
	}
	if len(got.Vector) != 3 {
		t.Errorf("vector length = %d, want 3", len(got.Vector))
	}
	if got.Metadata != "{}" {
		t.Errorf("metadata = %q, want {}", got.Metadata)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetWorkItem("nope"); err != ErrWorkItemNotFound {
		t.Errorf("expected ErrWorkItemNotFound, got %v", err)
	}
}

func TestReplaceWorkItem(t *testing.T) {
	store := newTestStore(t)

	item := testutil.NewTestItem(t, testutil.WithTitle("Before"))
	if err := store.AddWorkItem(item); err != nil {
		t.Fatalf("failed to add: %v", err)
	}

	updated := item.Clone()
	updated.Title = "After"
	updated.Status = model.StatusInProgress
	if err := store.ReplaceWorkItem(updated); err != nil {
		t.Fatalf("failed to replace: %v", err)
	}

	got, err := store.GetWorkItem(item.ID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Title != "After" || got.Status != model.StatusInProgress {
		t.Errorf("replace not visible: title=%q status=%s", got.Title, got.Status)
	}

	n, err := store.CountWorkItems(Predicate{})
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestDeleteMissing(t *testing.T) {
	store := newTestStore(t)
	if err := store.DeleteWorkItem("nope"); err != ErrWorkItemNotFound {
		t.Errorf("expected ErrWorkItemNotFound, got %v", err)
	}
}

func TestDeleteWhere(t *testing.T) {
	store := newTestStore(t)

	keep := testutil.NewTestItem(t, testutil.WithTitle("Keep"), testutil.WithStatus(model.StatusInProgress))
	goneA := testutil.NewTestItem(t, testutil.WithTitle("Stale A"), testutil.WithStatus(model.StatusCancelled))
	goneB := testutil.NewTestItem(t, testutil.WithTitle("Stale B"), testutil.WithStatus(model.StatusCancelled))
	for _, item := range []*model.WorkItem{keep, goneA, goneB} {
		if err := store.AddWorkItem(item); err != nil {
			t.Fatalf("failed to add %s: %v", item.Title, err)
		}
	}

	n, err := store.DeleteWorkItems(Eq("status", "cancelled"))
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d items, want 2", n)
	}

	if _, err := store.GetWorkItem(keep.ID); err != nil {
		t.Errorf("survivor missing: %v", err)
	}
	if _, err := store.GetWorkItem(goneA.ID); err != ErrWorkItemNotFound {
		t.Errorf("expected ErrWorkItemNotFound for deleted item, got %v", err)
	}

	// Index rows go with the items: keyword search must not resurrect them.
	hits, err := store.SearchText([]string{"stale"}, 10)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("search found %d deleted items", len(hits))
	}

	if _, err := store.DeleteWorkItems(Predicate{}); err == nil {
		t.Error("expected error for empty predicate")
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)

	a := testutil.NewTestItem(t, testutil.WithTitle("A"), testutil.WithStatus(model.StatusCompleted))
	b := testutil.NewTestItem(t, testutil.WithTitle("B"), testutil.WithStatus(model.StatusInProgress))
	c := testutil.NewTestItem(t,
		testutil.WithTitle("C"),
		testutil.WithStatus(model.StatusInProgress),
		testutil.WithItemType(model.TypeStory),
	)
	child := testutil.NewTestItem(t,
		testutil.WithTitle("A child"),
		testutil.WithParent(a.ID),
		testutil.WithSequence("1.1", 1),
	)
	for _, item := range []*model.WorkItem{a, b, c, child} {
		if err := store.AddWorkItem(item); err != nil {
			t.Fatalf("failed to add %s: %v", item.Title, err)
		}
	}

	inProgress, err := store.ListWorkItems(ListOptions{Where: Eq("status", "in_progress")})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(inProgress) != 2 {
		t.Errorf("in_progress count = %d, want 2", len(inProgress))
	}

	stories, err := store.ListWorkItems(ListOptions{
		Where: And(Eq("status", "in_progress"), In("item_type", []string{"story"})),
	})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(stories) != 1 || stories[0].Title != "C" {
		t.Errorf("expected only C, got %d items", len(stories))
	}

	roots, err := store.ListWorkItems(ListOptions{Where: IsNull("parent_id")})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(roots) != 3 {
		t.Errorf("root count = %d, want 3", len(roots))
	}
}

func TestSearchText(t *testing.T) {
	store := newTestStore(t)

	a := testutil.NewTestItem(t, testutil.WithTitle("Implement OAuth login flow"))
	b := testutil.NewTestItem(t, testutil.WithTitle("Write database migrations"))
	for _, item := range []*model.WorkItem{a, b} {
		if err := store.AddWorkItem(item); err != nil {
			t.Fatalf("failed to add: %v", err)
		}
	}

	hits, err := store.SearchText([]string{"oauth"}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hit count = %d, want 1", len(hits))
	}
	if hits[0].Item.ID != a.ID {
		t.Errorf("expected %s, got %s", a.ID, hits[0].Item.ID)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %v, want > 0", hits[0].Score)
	}
}

func TestSearchTextAfterReplace(t *testing.T) {
	store := newTestStore(t)

	item := testutil.NewTestItem(t, testutil.WithTitle("Original searchable title"))
	if err := store.AddWorkItem(item); err != nil {
		t.Fatalf("failed to add: %v", err)
	}

	updated := item.Clone()
	updated.Title = "Renamed entry"
	if err := store.ReplaceWorkItem(updated); err != nil {
		t.Fatalf("failed to replace: %v", err)
	}

	stale, err := store.SearchText([]string{"original"}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("stale index rows remain: %d hits", len(stale))
	}

	fresh, err := store.SearchText([]string{"renamed"}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(fresh) != 1 {
		t.Errorf("fresh hit count = %d, want 1", len(fresh))
	}
}

func TestSearchVector(t *testing.T) {
	store := newTestStore(t)

	near := testutil.NewTestItem(t, testutil.WithTitle("Near"), testutil.WithVector(1, 0, 0))
	far := testutil.NewTestItem(t, testutil.WithTitle("Far"), testutil.WithVector(0, 1, 0))
	for _, item := range []*model.WorkItem{near, far} {
		if err := store.AddWorkItem(item); err != nil {
			t.Fatalf("failed to add: %v", err)
		}
	}

	hits, err := store.SearchVector([]float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("vector search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hit count = %d, want 2", len(hits))
	}
	if hits[0].Item.ID != near.ID {
		t.Errorf("nearest = %s, want %s", hits[0].Item.Title, near.Title)
	}
	if hits[0].Distance >= hits[1].Distance {
		t.Errorf("distances not ascending: %v then %v", hits[0].Distance, hits[1].Distance)
	}
}

func TestExecutionLog(t *testing.T) {
	store := newTestStore(t)

	rec := testutil.NewTestExecution(t, "item-1")
	if err := store.AppendExecution(rec); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	rec.Status = model.ExecutionRunning
	if err := store.ReplaceExecution(rec); err != nil {
		t.Fatalf("failed to replace: %v", err)
	}

	got, err := store.GetExecution(rec.ID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Status != model.ExecutionRunning {
		t.Errorf("status = %s, want running", got.Status)
	}

	recs, err := store.ListExecutions(ListOptions{Where: Eq("work_item_id", "item-1")})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("record count = %d, want 1", len(recs))
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{1, 0}); d > 1e-9 {
		t.Errorf("identical vectors distance = %v, want 0", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 1}); d < 0.99 {
		t.Errorf("orthogonal vectors distance = %v, want 1", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 0}); d != 1.0 {
		t.Errorf("zero vector distance = %v, want 1", d)
	}
	if d := CosineDistance([]float32{1}, []float32{1, 0}); d != 1.0 {
		t.Errorf("mismatched dims distance = %v, want 1", d)
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("component %d = %v, want %v", i, out[i], in[i])
		}
	}
	if decodeVector(nil) != nil {
		t.Error("decode of nil should be nil")
	}
}
