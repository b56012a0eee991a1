package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
)

const (
	// maxCosineDistance drops semantic neighbours that are barely related.
	maxCosineDistance = 0.8

	semanticWeight = 0.7
	keywordWeight  = 0.3
	bothListsBoost = 1.2
)

// ErrInvalidMode reports an unknown search_type.
var ErrInvalidMode = errors.New("invalid search mode")

// Request is one search call.
type Request struct {
	Query       string           `json:"query"`
	Mode        Mode             `json:"search_type"`
	Scope       Scope            `json:"scope"`
	Limit       int              `json:"limit"`
	Offset      int              `json:"offset"`
	Types       []model.ItemType `json:"type"`
	Statuses    []model.Status   `json:"status"`
	Priorities  []model.Priority `json:"priority"`
	BoostRecent bool             `json:"boost_recent"`
}

// Result is one scored, annotated hit.
type Result struct {
	Item         *model.WorkItem    `json:"item"`
	Score        float64            `json:"score"`
	Breakdown    map[string]float64 `json:"breakdown"`
	Highlights   map[string]string  `json:"highlights"`
	MatchSummary string             `json:"match_summary"`
	Indicators   []string           `json:"indicators"`

	matchedFields []string
}

// Engine runs searches against a namespace store.
type Engine struct {
	embedder embedding.Embedder
}

// NewEngine builds a search engine around the given embedder.
func NewEngine(embedder embedding.Embedder) *Engine {
	return &Engine{embedder: embedder}
}

// Search parses the query, runs the requested mode, ranks, validates, and
// paginates.
func (e *Engine) Search(ctx context.Context, store *storage.Store, req Request) ([]*Result, error) {
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	q := ParseNaturalQuery(req.Query)
	q.Limit = req.Limit
	q.Offset = req.Offset
	q.BoostRecent = req.BoostRecent
	if req.Scope != "" {
		q.Scope = req.Scope
	}

	var base map[string]*candidate
	var err error
	switch req.Mode {
	case ModeSemantic:
		base, err = e.semantic(ctx, store, q, req.Limit+req.Offset)
	case ModeKeyword:
		base, err = e.keyword(ctx, store, q, req.Limit+req.Offset)
	case ModeHybrid:
		base, err = e.hybrid(ctx, store, q, req.Limit+req.Offset)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(base))
	for _, cand := range base {
		if !keepCandidate(cand.item, req) {
			continue
		}
		results = append(results, rank(cand, q))
	}
	results = validateResults(results)

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.OrderIndex < results[j].Item.OrderIndex
	})

	if req.Offset >= len(results) {
		return []*Result{}, nil
	}
	results = results[req.Offset:]
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// candidate is a retrieval hit before ranking.
type candidate struct {
	item     *model.WorkItem
	score    float64
	semantic bool
	keyword  bool
}

// semantic embeds the raw query and takes the store's nearest neighbours,
// dropping anything past the distance ceiling. Score is cosine similarity.
func (e *Engine) semantic(ctx context.Context, store *storage.Store, q Query, budget int) (map[string]*candidate, error) {
	if strings.TrimSpace(q.Raw) == "" {
		return map[string]*candidate{}, nil
	}
	vec, err := e.embedder.Embed(ctx, q.Raw)
	if err != nil {
		if errors.Is(err, embedding.ErrNotReady) {
			return nil, err
		}
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	hits, err := store.SearchVector(vec, budget)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*candidate, len(hits))
	for _, hit := range hits {
		if hit.Distance > maxCosineDistance {
			continue
		}
		out[hit.Item.ID] = &candidate{item: hit.Item, score: 1 - hit.Distance, semantic: true}
	}
	return out, nil
}

// keyword runs the store's full-text search, falling back inside the store
// to substring scans when no FTS index exists. Scores are normalised to the
// best hit.
func (e *Engine) keyword(ctx context.Context, store *storage.Store, q Query, budget int) (map[string]*candidate, error) {
	terms := q.Terms
	for _, f := range q.Filters {
		if f.Field == "text" {
			terms = append(terms, CleanTerms(f.Value)...)
		}
	}
	if len(terms) == 0 {
		return map[string]*candidate{}, nil
	}
	hits, err := store.SearchText(terms, budget)
	if err != nil {
		return nil, err
	}
	var max float64
	for _, hit := range hits {
		if hit.Score > max {
			max = hit.Score
		}
	}
	out := make(map[string]*candidate, len(hits))
	for _, hit := range hits {
		score := 1.0
		if max > 0 {
			score = hit.Score / max
		}
		out[hit.Item.ID] = &candidate{item: hit.Item, score: score, keyword: true}
	}
	return out, nil
}

// hybrid merges semantic (0.7) and keyword (0.3) halves; ids found by both
// strategies get a 1.2 boost.
func (e *Engine) hybrid(ctx context.Context, store *storage.Store, q Query, budget int) (map[string]*candidate, error) {
	half := budget / 2
	if half < 1 {
		half = 1
	}

	sem, err := e.semantic(ctx, store, q, half)
	if err != nil {
		if errors.Is(err, embedding.ErrNotReady) {
			logger.Warn("semantic half unavailable, keyword only: %v", err)
			sem = map[string]*candidate{}
		} else {
			return nil, err
		}
	}
	kw, err := e.keyword(ctx, store, q, half)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*candidate, len(sem)+len(kw))
	for id, c := range sem {
		merged[id] = &candidate{item: c.item, score: c.score * semanticWeight, semantic: true}
	}
	for id, c := range kw {
		if existing, ok := merged[id]; ok {
			existing.score = (existing.score + c.score*keywordWeight) * bothListsBoost
			existing.keyword = true
			continue
		}
		merged[id] = &candidate{item: c.item, score: c.score * keywordWeight, keyword: true}
	}
	return merged, nil
}

// keepCandidate applies the request's item filters.
func keepCandidate(item *model.WorkItem, req Request) bool {
	if len(req.Types) > 0 && !containsVal(req.Types, item.ItemType) {
		return false
	}
	if len(req.Statuses) > 0 && !containsVal(req.Statuses, item.Status) {
		return false
	}
	if len(req.Priorities) > 0 && !containsVal(req.Priorities, item.Priority) {
		return false
	}
	return true
}

func containsVal[T comparable](vals []T, v T) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
