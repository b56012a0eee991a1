package search

import (
	"context"
	"testing"
	"time"

	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
	"github.com/jivehq/jive/internal/testutil"
)

func newTestSearch(t *testing.T) (*Engine, *storage.Store, embedding.Embedder) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.CreateFTSIndex(); err != nil {
		t.Fatalf("fts index: %v", err)
	}
	emb := embedding.NewLocal(model.EmbeddingDim)
	return NewEngine(emb), store, emb
}

func seedItem(t *testing.T, store *storage.Store, emb embedding.Embedder, title, description string, mut func(*model.WorkItem)) *model.WorkItem {
	t.Helper()
	item := testutil.NewTestItem(t, testutil.WithTitle(title), testutil.WithDescription(description))
	vec, err := emb.Embed(context.Background(), item.EmbeddingText())
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	item.Vector = vec
	if mut != nil {
		mut(item)
	}
	if err := store.AddWorkItem(item); err != nil {
		t.Fatalf("add item: %v", err)
	}
	return item
}

func TestKeywordSearch(t *testing.T) {
	e, store, emb := newTestSearch(t)
	ctx := context.Background()

	hit := seedItem(t, store, emb, "Fix authentication timeout", "Login sessions expire too early", nil)
	seedItem(t, store, emb, "Update billing report", "Quarterly revenue numbers", nil)

	results, err := e.Search(ctx, store, Request{Query: "authentication timeout", Mode: ModeKeyword})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Item.ID != hit.ID {
		t.Fatalf("wrong item: %s", r.Item.Title)
	}
	if r.Score <= 0 {
		t.Errorf("score = %v, want > 0", r.Score)
	}
	if r.Breakdown["text"] <= 0 {
		t.Errorf("text breakdown missing: %v", r.Breakdown)
	}
}

func TestSemanticSearch(t *testing.T) {
	e, store, emb := newTestSearch(t)
	ctx := context.Background()

	seedItem(t, store, emb, "Database connection pooling", "Tune postgres pool sizes for the API", nil)
	seedItem(t, store, emb, "Design onboarding email", "Welcome sequence copywriting", nil)

	results, err := e.Search(ctx, store, Request{Query: "database connection pooling postgres", Mode: ModeSemantic})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no semantic results")
	}
	if results[0].Item.Title != "Database connection pooling" {
		t.Errorf("top hit = %q", results[0].Item.Title)
	}
}

func TestHybridPriorityBoost(t *testing.T) {
	e, store, emb := newTestSearch(t)
	ctx := context.Background()

	critical := seedItem(t, store, emb, "Deploy pipeline fixes", "Stabilise the release automation", func(w *model.WorkItem) {
		w.Priority = model.PriorityCritical
	})
	medium := seedItem(t, store, emb, "Deploy pipeline fixes", "Stabilise the release automation", func(w *model.WorkItem) {
		w.OrderIndex = 2
	})

	results, err := e.Search(ctx, store, Request{Query: "deploy pipeline", Mode: ModeHybrid})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Item.ID != critical.ID {
		t.Fatalf("critical item should rank first, got %s", results[0].Item.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("critical score %v not above medium %v", results[0].Score, results[1].Score)
	}
	_ = medium
}

func TestSearchStatusFilter(t *testing.T) {
	e, store, emb := newTestSearch(t)
	ctx := context.Background()

	seedItem(t, store, emb, "Refactor cache layer", "", func(w *model.WorkItem) { w.Status = model.StatusCompleted })
	open := seedItem(t, store, emb, "Refactor cache invalidation", "", nil)

	results, err := e.Search(ctx, store, Request{
		Query:    "refactor cache",
		Mode:     ModeKeyword,
		Statuses: []model.Status{model.StatusNotStarted},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Item.ID != open.ID {
		t.Fatalf("status filter failed: %d results", len(results))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e, store, emb := newTestSearch(t)
	seedItem(t, store, emb, "Something", "", nil)

	results, err := e.Search(context.Background(), store, Request{Query: "   ", Mode: ModeHybrid})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty query returned %d results", len(results))
	}
}

func TestSearchInvalidMode(t *testing.T) {
	e, store, _ := newTestSearch(t)
	_, err := e.Search(context.Background(), store, Request{Query: "x", Mode: "telepathic"})
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestHighlightsAndIndicators(t *testing.T) {
	e, store, emb := newTestSearch(t)
	ctx := context.Background()

	seedItem(t, store, emb, "Improve search latency", "Cut p99 search time in half", func(w *model.WorkItem) {
		w.Priority = model.PriorityHigh
	})

	results, err := e.Search(ctx, store, Request{Query: "search latency", Mode: ModeKeyword})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Highlights["title"] != "Improve **search** **latency**" {
		t.Errorf("title highlight = %q", r.Highlights["title"])
	}
	if !containsVal(r.Indicators, "title_match") {
		t.Errorf("indicators = %v, want title_match", r.Indicators)
	}
	if !containsVal(r.Indicators, "high_priority") {
		t.Errorf("indicators = %v, want high_priority", r.Indicators)
	}
	if r.MatchSummary == "" {
		t.Error("match summary empty")
	}
}

func TestRecencyBoost(t *testing.T) {
	fresh := recencyBoost(time.Now().Add(-time.Hour), true)
	if fresh != 1.3 {
		t.Errorf("fresh boost = %v, want 1.3", fresh)
	}
	stale := recencyBoost(time.Now().Add(-120*24*time.Hour), true)
	if stale != 0.9 {
		t.Errorf("stale boost = %v, want 0.9", stale)
	}
	if off := recencyBoost(time.Now().Add(-120*24*time.Hour), false); off != 1.0 {
		t.Errorf("disabled boost = %v, want 1.0", off)
	}
}

func TestScoreClamp(t *testing.T) {
	results := []*Result{
		{Item: &model.WorkItem{ID: "a", Title: "t", Priority: model.PriorityMedium}, Score: 42},
		{Item: &model.WorkItem{ID: "", Title: "dropped"}, Score: 1},
		{Item: &model.WorkItem{ID: "b", Priority: model.PriorityMedium}, Score: 1},
	}
	out := validateResults(results)
	if len(out) != 1 {
		t.Fatalf("got %d results, want 1 (missing id and empty text dropped)", len(out))
	}
	if out[0].Score != 10 {
		t.Errorf("score = %v, want clamp to 10", out[0].Score)
	}
	if !containsVal(out[0].Indicators, "high_relevance") {
		t.Errorf("indicators = %v, want high_relevance", out[0].Indicators)
	}
}
