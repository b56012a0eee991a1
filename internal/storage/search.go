package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jivehq/jive/internal/model"
)

// VectorHit is one nearest-neighbour result.
type VectorHit struct {
	Item     *model.WorkItem
	Distance float64
}

// TextHit is one keyword-search result. Score grows with relevance.
type TextHit struct {
	Item  *model.WorkItem
	Score float64
}

// SearchVector returns up to limit items ranked by cosine distance to query,
// nearest first. The corpus is per-namespace, so a linear scan is the index.
func (s *Store) SearchVector(query []float32, limit int) ([]VectorHit, error) {
	if limit <= 0 {
		limit = 10
	}
	items, err := s.ListWorkItems(ListOptions{Where: NotNull("vector")})
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(items))
	for _, item := range items {
		if len(item.Vector) == 0 {
			continue
		}
		hits = append(hits, VectorHit{Item: item, Distance: CosineDistance(query, item.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchText runs full-text search over the indexed fields. The FTS rank is
// column-weighted bm25; when the match expression cannot be served (syntax,
// missing index) it falls back to LIKE scanning.
func (s *Store) SearchText(terms []string, limit int) ([]TextHit, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(terms) == 0 {
		return nil, nil
	}

	hits, err := s.searchFTS(terms, limit)
	if err == nil {
		return hits, nil
	}
	return s.searchLike(terms, limit)
}

func (s *Store) searchFTS(terms []string, limit int) ([]TextHit, error) {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " ")

	// Column weights: id 0, title 3.0, description 2.0, acceptance_criteria
	// 1.5, status/priority/item_type 1.0. bm25 returns lower-is-better, so
	// negate for a score.
	rows, err := s.db.Query(`
		SELECT id, -bm25(work_items_fts, 0, 3.0, 2.0, 1.5, 1.0, 1.0, 1.0) AS score
		FROM work_items_fts WHERE work_items_fts MATCH ?
		ORDER BY score DESC LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type scored struct {
		id    string
		score float64
	}
	var ranked []scored
	for rows.Next() {
		var r scored
		if err := rows.Scan(&r.id, &r.score); err != nil {
			return nil, fmt.Errorf("failed to scan fts row: %w", err)
		}
		ranked = append(ranked, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]TextHit, 0, len(ranked))
	for _, r := range ranked {
		item, err := s.GetWorkItem(r.id)
		if err == ErrWorkItemNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, TextHit{Item: item, Score: r.score})
	}
	return hits, nil
}

// searchLike is the substring fallback: every term must appear in at least
// one searchable column. Scores count matched terms.
func (s *Store) searchLike(terms []string, limit int) ([]TextHit, error) {
	cols := []string{"title", "description", "acceptance_criteria", "status", "priority", "item_type"}

	var perTerm []Predicate
	for _, t := range terms {
		var anyCol []Predicate
		for _, c := range cols {
			anyCol = append(anyCol, Contains(c, t))
		}
		perTerm = append(perTerm, Or(anyCol...))
	}

	items, err := s.ListWorkItems(ListOptions{Where: And(perTerm...), Limit: limit})
	if err != nil {
		return nil, err
	}

	hits := make([]TextHit, 0, len(items))
	for _, item := range items {
		score := 0.0
		haystack := strings.ToLower(item.Title + " " + item.Description)
		for _, t := range terms {
			if strings.Contains(haystack, strings.ToLower(t)) {
				score++
			}
		}
		hits = append(hits, TextHit{Item: item, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}
