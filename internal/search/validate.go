package search

import "github.com/jivehq/jive/internal/model"

const (
	minScore = 0.0
	maxScore = 10.0

	highRelevanceThreshold = 5.0
)

// validateResults post-filters a ranked list: results without an id or any
// text content are dropped, scores are clamped to [0,10], and each survivor
// is tagged with match indicators.
func validateResults(results []*Result) []*Result {
	out := results[:0]
	for _, r := range results {
		if r.Item == nil || r.Item.ID == "" {
			continue
		}
		if r.Item.Title == "" && r.Item.Description == "" && len(r.Item.AcceptanceCriteria) == 0 {
			continue
		}
		if r.Score < minScore {
			r.Score = minScore
		}
		if r.Score > maxScore {
			r.Score = maxScore
		}
		r.Indicators = indicators(r)
		out = append(out, r)
	}
	return out
}

func indicators(r *Result) []string {
	var out []string
	for _, field := range r.matchedFields {
		switch field {
		case "title":
			out = append(out, "title_match")
		case "description":
			out = append(out, "description_match")
		case "tags":
			out = append(out, "tag_match")
		}
	}
	if r.Score > highRelevanceThreshold {
		out = append(out, "high_relevance")
	}
	if r.Item.Priority == model.PriorityHigh || r.Item.Priority == model.PriorityCritical {
		out = append(out, "high_priority")
	}
	return out
}
