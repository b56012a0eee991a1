package search

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jivehq/jive/internal/model"
)

// Field weights for term hits. acceptance_criteria plays the "content" role.
var fieldWeights = []struct {
	name   string
	weight float64
}{
	{"title", 3.0},
	{"description", 2.0},
	{"tags", 2.5},
	{"acceptance_criteria", 1.5},
}

const (
	exactHit = 2.0
	fuzzyHit = 1.0

	filterExactHit    = 2.0
	filterFuzzyHit    = 1.5
	filterWildcardHit = 1.0
)

// rank turns a retrieval candidate into a scored result with breakdown,
// highlights, and a summary. The final score is the base retrieval score
// plus normalised text and filter components, scaled by status, priority,
// and recency weights.
func rank(cand *candidate, q Query) *Result {
	item := cand.item

	textNorm, matchedTerms, matchedFields := textScore(item, q)
	filterNorm, matchedFilters := filterScore(item, q)

	statusW := statusWeight(item.Status)
	priorityW := item.Priority.BoostFactor()
	recencyW := recencyBoost(item.UpdatedAt, q.BoostRecent)

	final := (cand.score + textNorm + filterNorm) * statusW * priorityW * recencyW

	res := &Result{
		Item:  item,
		Score: final,
		Breakdown: map[string]float64{
			"base":            cand.score,
			"text":            textNorm,
			"filter":          filterNorm,
			"status_weight":   statusW,
			"priority_weight": priorityW,
			"recency_boost":   recencyW,
		},
		Highlights:    highlights(item, matchedTerms),
		MatchSummary:  matchSummary(cand, matchedTerms, matchedFields, matchedFilters),
		matchedFields: matchedFields,
	}
	return res
}

// textScore sums field-weighted term hits (exact 2, fuzzy 1) and normalises
// by the best possible score for the query. It returns the matched terms and
// the fields they hit.
func textScore(item *model.WorkItem, q Query) (float64, []string, []string) {
	if len(q.Terms) == 0 {
		return 0, nil, nil
	}

	fuzzyAllowed := len(q.Terms) == 1 && len(q.Terms[0]) >= 4

	var raw float64
	termSet := map[string]bool{}
	fieldSet := map[string]bool{}
	for _, term := range q.Terms {
		for _, fw := range fieldWeights {
			value := strings.ToLower(fieldValue(item, fw.name))
			if value == "" {
				continue
			}
			switch {
			case strings.Contains(value, term):
				raw += exactHit * fw.weight
				termSet[term] = true
				fieldSet[fw.name] = true
			case fuzzyAllowed && fuzzyContains(value, term, q.FuzzyThreshold):
				raw += fuzzyHit * fw.weight
				termSet[term] = true
				fieldSet[fw.name] = true
			}
		}
	}

	var maxPerTerm float64
	for _, fw := range fieldWeights {
		maxPerTerm += exactHit * fw.weight
	}
	norm := raw / (maxPerTerm * float64(len(q.Terms)))

	return norm, sortedKeys(termSet), sortedKeys(fieldSet)
}

// filterScore evaluates parsed filters (exact 2, fuzzy 1.5, wildcard 1,
// each scaled by the filter's weight) normalised to the possible maximum.
func filterScore(item *model.WorkItem, q Query) (float64, []string) {
	if len(q.Filters) == 0 {
		return 0, nil
	}

	var raw, possible float64
	var matched []string
	for _, f := range q.Filters {
		possible += filterExactHit * f.Weight
		value := strings.ToLower(fieldValue(item, f.Field))
		want := strings.ToLower(f.Value)
		if value == "" {
			continue
		}
		switch f.Op {
		case OpExact:
			if strings.Contains(value, want) {
				raw += filterExactHit * f.Weight
				matched = append(matched, f.Field)
			}
		case OpFuzzy:
			if strings.Contains(value, want) || fuzzyContains(value, want, q.FuzzyThreshold) {
				raw += filterFuzzyHit * f.Weight
				matched = append(matched, f.Field)
			}
		case OpWildcard:
			if wildcardMatch(value, want) {
				raw += filterWildcardHit * f.Weight
				matched = append(matched, f.Field)
			}
		}
	}
	return raw / possible, matched
}

// fieldValue extracts a searchable field as text. "text" spans the free-text
// fields.
func fieldValue(item *model.WorkItem, field string) string {
	switch field {
	case "title":
		return item.Title
	case "description":
		return item.Description
	case "tags", "tag":
		return strings.Join(item.Tags, " ")
	case "acceptance_criteria", "criteria", "content":
		return strings.Join(item.AcceptanceCriteria, " ")
	case "status":
		return string(item.Status)
	case "priority":
		return string(item.Priority)
	case "type", "item_type":
		return string(item.ItemType)
	case "id":
		return item.ID
	case "sequence", "sequence_number":
		return item.SequenceNumber
	case "text":
		return item.Title + " " + item.Description + " " + strings.Join(item.AcceptanceCriteria, " ")
	}
	return ""
}

// statusWeight favours work in flight and buries cancelled items.
func statusWeight(s model.Status) float64 {
	switch s {
	case model.StatusInProgress:
		return 1.1
	case model.StatusCompleted:
		return 0.9
	case model.StatusCancelled:
		return 0.5
	}
	return 1.0
}

// recencyBoost rewards items touched in the last month.
func recencyBoost(updated time.Time, enabled bool) float64 {
	if !enabled {
		return 1.0
	}
	age := time.Since(updated)
	switch {
	case age <= 7*24*time.Hour:
		return 1.3
	case age <= 30*24*time.Hour:
		return 1.1
	case age <= 90*24*time.Hour:
		return 1.0
	}
	return 0.9
}

// fuzzyContains reports whether any word of value is within the similarity
// threshold of term.
func fuzzyContains(value, term string, threshold float64) bool {
	if threshold <= 0 {
		threshold = 0.8
	}
	for _, word := range strings.Fields(value) {
		if similarity(word, term) >= threshold {
			return true
		}
	}
	return false
}

// similarity is 1 - normalised Levenshtein distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	dist := prev[lb]
	max := la
	if lb > max {
		max = lb
	}
	return 1 - float64(dist)/float64(max)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// wildcardMatch supports * globs against value.
func wildcardMatch(value, pattern string) bool {
	re := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	matched, err := regexp.MatchString(re, value)
	return err == nil && matched
}

// highlights wraps matched terms in ** ** inside title and description,
// preserving the original casing.
func highlights(item *model.WorkItem, terms []string) map[string]string {
	if len(terms) == 0 {
		return nil
	}
	out := map[string]string{}
	if h, hit := highlightText(item.Title, terms); hit {
		out["title"] = h
	}
	if h, hit := highlightText(item.Description, terms); hit {
		out["description"] = h
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func highlightText(text string, terms []string) (string, bool) {
	if text == "" {
		return "", false
	}
	hit := false
	for _, term := range terms {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(term))
		if err != nil {
			continue
		}
		next := re.ReplaceAllString(text, "**$0**")
		if next != text {
			hit = true
			text = next
		}
	}
	return text, hit
}

// matchSummary explains in one line why the item was returned.
func matchSummary(cand *candidate, terms, fields, filters []string) string {
	var parts []string
	if len(terms) > 0 {
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = fmt.Sprintf("%q", t)
		}
		part := "matched " + strings.Join(quoted, ", ")
		if len(fields) > 0 {
			part += " in " + strings.Join(fields, ", ")
		}
		parts = append(parts, part)
	}
	if len(filters) > 0 {
		parts = append(parts, "filter hit on "+strings.Join(dedupe(filters), ", "))
	}
	switch {
	case cand.semantic && cand.keyword:
		parts = append(parts, "found by semantic and keyword retrieval")
	case cand.semantic:
		parts = append(parts, fmt.Sprintf("semantic similarity %.2f", cand.score))
	}
	if len(parts) == 0 {
		return "keyword index match"
	}
	return strings.Join(parts, "; ")
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
