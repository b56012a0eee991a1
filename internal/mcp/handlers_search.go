package mcp

import (
	"context"
	"strings"

	"github.com/jivehq/jive/internal/metrics"
	"github.com/jivehq/jive/internal/search"
)

// SearchParams is the unified params struct for jive_search_content.
type SearchParams struct {
	Action string `json:"action,omitempty" description:"search (default)"`

	Query      string `json:"query,omitempty" description:"Natural-language query; supports \"quoted phrases\" and field:value filters"`
	SearchType string `json:"search_type,omitempty" description:"semantic, keyword, or hybrid (default)"`
	Scope      string `json:"scope,omitempty" description:"all, work_items, executions, or notes"`

	// Result filters.
	Type     []string `json:"type,omitempty"`
	Status   []string `json:"status,omitempty"`
	Priority []string `json:"priority,omitempty"`

	Limit       int  `json:"limit,omitempty" description:"Max results (default 10)"`
	Offset      int  `json:"offset,omitempty"`
	BoostRecent bool `json:"boost_recent,omitempty" description:"Weigh recently updated items higher"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

var searchActions = []string{"search"}

func (s *Server) handleSearch(ctx context.Context, call *ToolCall, p SearchParams) *Result {
	if p.Action != "" && p.Action != "search" {
		return badAction("jive_search_content", p.Action, searchActions)
	}

	if strings.TrimSpace(p.Query) == "" {
		return okMsg([]*search.Result{}, "empty query matches nothing").
			WithMeta("warnings", []string{"query is empty; supply keywords, a \"quoted phrase\", or field:value filters"})
	}

	req := search.Request{
		Query:       p.Query,
		Mode:        search.Mode(p.SearchType),
		Scope:       search.Scope(p.Scope),
		Limit:       p.Limit,
		Offset:      p.Offset,
		Types:       toItemTypes(p.Type),
		Statuses:    toStatuses(p.Status),
		Priorities:  toPriorities(p.Priority),
		BoostRecent: p.BoostRecent,
	}
	mode := req.Mode
	if mode == "" {
		mode = search.ModeHybrid
	}

	results, err := s.searcher.Search(ctx, call.Store, req)
	if err != nil {
		return failErr(err)
	}
	metrics.RecordSearch(string(mode))

	return okMsg(map[string]any{
		"results": results,
		"total":   len(results),
	}, "Found %d result(s)", len(results)).WithMeta("search_type", string(mode))
}
