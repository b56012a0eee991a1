package suites

import (
	"fmt"
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// uniqueToken returns a single alphanumeric token that tokenises identically
// in the keyword index and the embedder, so searches only hit this test's
// fixtures.
func uniqueToken() string {
	return fmt.Sprintf("zx%d", time.Now().UnixNano())
}

type searchPage struct {
	Results []struct {
		Item struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"item"`
		Score        float64 `json:"score"`
		MatchSummary string  `json:"match_summary"`
	} `json:"results"`
	Total int `json:"total"`
}

func (p *searchPage) containsItem(id string) bool {
	for _, r := range p.Results {
		if r.Item.ID == id {
			return true
		}
	}
	return false
}

// GetSearchTests covers keyword, semantic, and hybrid retrieval through
// jive_search_content.
func GetSearchTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_keyword_search",
			Description: "Keyword mode finds items by title tokens",
			Tags:        []string{"search"},
			Covers:      []string{"search:keyword"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				token := uniqueToken()
				id, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":        "task",
					"title":       "Investigate " + token + " regression",
					"description": "The nightly import started failing",
				})
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_search_content", map[string]interface{}{
					"query":       token,
					"search_type": "keyword",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Keyword search should succeed")

				var page searchPage
				if err := env.DataAs(&page); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(1, page.Total, "Exactly the fixture should match")
				ctx.Assertions.AssertTrue(page.containsItem(id), "The fixture should be in the results")
				if len(page.Results) > 0 {
					ctx.Assertions.AssertTrue(page.Results[0].Score > 0, "Matches should carry a positive score")
				}
				return nil
			},
		},

		{
			Name:        "test_semantic_search",
			Description: "Semantic mode ranks items sharing query terms",
			Tags:        []string{"search", "semantic"},
			Covers:      []string{"search:semantic"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				token := uniqueToken()
				id, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":        "story",
					"title":       token + " ingestion pipeline",
					"description": "Stream events into the warehouse",
				})
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_search_content", map[string]interface{}{
					"query":       token + " pipeline",
					"search_type": "semantic",
					"limit":       5,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Semantic search should succeed")

				var page searchPage
				if err := env.DataAs(&page); err != nil {
					return err
				}
				ctx.Assertions.AssertGreaterOrEqual(page.Total, 1, "Semantic search should return candidates")
				ctx.Assertions.AssertTrue(page.containsItem(id), "The fixture should rank among the results")
				return nil
			},
		},

		{
			Name:        "test_hybrid_default_with_filters",
			Description: "Hybrid is the default mode and honours type filters",
			Tags:        []string{"search"},
			Covers:      []string{"search:hybrid"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				token := uniqueToken()
				taskID, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":  "task",
					"title": token + " cleanup job",
				})
				if err != nil {
					return err
				}
				epicID, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":  "epic",
					"title": token + " cleanup programme",
				})
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_search_content", map[string]interface{}{
					"query": token,
					"type":  []string{"task"},
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Hybrid search should succeed")
				if env.Metadata != nil {
					ctx.Assertions.AssertEqual("hybrid", fmt.Sprint(env.Metadata["search_type"]), "Default mode should be hybrid")
				}

				var page searchPage
				if err := env.DataAs(&page); err != nil {
					return err
				}
				ctx.Assertions.AssertGreaterOrEqual(page.Total, 1, "The task should still match")
				ctx.Assertions.AssertTrue(page.containsItem(taskID), "The task should be in the results")
				ctx.Assertions.AssertFalse(page.containsItem(epicID), "The type filter should drop the epic")
				return nil
			},
		},

		{
			Name:        "test_empty_query",
			Description: "An empty query succeeds with a warning and no results",
			Tags:        []string{"search", "validation"},
			Covers:      []string{"search:empty"},
			Timeout:     15 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				env, err := ctx.Invoke("jive_search_content", map[string]interface{}{
					"query": "   ",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Empty query should not be an error")
				ctx.Assertions.AssertContains(env.Message, "empty query", "Message should explain the empty result")
				ctx.Assertions.AssertTrue(env.Metadata != nil && env.Metadata["warnings"] != nil,
					"Envelope should carry a warning")
				return nil
			},
		},

		{
			Name:        "test_invalid_search_mode",
			Description: "Unknown search_type values are rejected",
			Tags:        []string{"search", "validation"},
			Timeout:     15 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				env, err := ctx.Invoke("jive_search_content", map[string]interface{}{
					"query":       "anything",
					"search_type": "psychic",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "Unknown mode should fail validation")
				return nil
			},
		},
	}
}
