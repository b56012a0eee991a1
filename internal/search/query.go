// Package search implements semantic, keyword, and hybrid retrieval over
// work items, with query parsing, ranking, and result validation.
package search

import (
	"regexp"
	"strings"
)

// Operator is how a filter compares its value.
type Operator string

const (
	OpExact    Operator = "exact"
	OpFuzzy    Operator = "fuzzy"
	OpWildcard Operator = "wildcard"
)

// Filter is one parsed field constraint.
type Filter struct {
	Field  string   `json:"field"`
	Op     Operator `json:"operator"`
	Value  string   `json:"value"`
	Weight float64  `json:"weight"`
}

// Scope selects which record sets a query covers.
type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeWorkItems  Scope = "work_items"
	ScopeExecutions Scope = "executions"
	ScopeNotes      Scope = "notes"
)

// Query is the normalised form every search mode consumes.
type Query struct {
	Raw            string   `json:"raw"`
	Terms          []string `json:"terms"`
	Filters        []Filter `json:"filters"`
	Scope          Scope    `json:"scope"`
	SortBy         string   `json:"sort_by"`
	Limit          int      `json:"limit"`
	Offset         int      `json:"offset"`
	FuzzyThreshold float64  `json:"fuzzy_threshold"`
	BoostRecent    bool     `json:"boost_recent"`
}

const maxTerms = 20

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true,
	"were": true, "will": true, "with": true,
}

var (
	quotedRe     = regexp.MustCompile(`"([^"]+)"`)
	fieldValueRe = regexp.MustCompile(`(\w+):(\S+)`)
	nonWordRe    = regexp.MustCompile(`[^\w]+`)
)

// ParseNaturalQuery turns a free-text query into terms and filters: quoted
// phrases become exact filters (weight 2.0), field:value pairs become fuzzy
// filters on that field (weight 1.5), everything else is cleaned into terms.
func ParseNaturalQuery(raw string) Query {
	q := Query{
		Raw:            raw,
		Scope:          ScopeWorkItems,
		FuzzyThreshold: 0.8,
	}

	rest := raw
	for _, m := range quotedRe.FindAllStringSubmatch(rest, -1) {
		q.Filters = append(q.Filters, Filter{Field: "text", Op: OpExact, Value: m[1], Weight: 2.0})
	}
	rest = quotedRe.ReplaceAllString(rest, " ")

	for _, m := range fieldValueRe.FindAllStringSubmatch(rest, -1) {
		q.Filters = append(q.Filters, Filter{
			Field: strings.ToLower(m[1]), Op: OpFuzzy, Value: m[2], Weight: 1.5,
		})
	}
	rest = fieldValueRe.ReplaceAllString(rest, " ")

	q.Terms = CleanTerms(rest)
	return q
}

// CleanTerms lowercases, strips non-word characters, drops stop words and
// one-letter fragments, dedupes preserving order, and caps the list.
func CleanTerms(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, field := range strings.Fields(strings.ToLower(raw)) {
		term := nonWordRe.ReplaceAllString(field, "")
		if len(term) < 2 || stopWords[term] || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}
