package suites

import (
	"fmt"
	"time"

	"github.com/jivehq/jive/test/pkg/client"
	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

type outlineItem struct {
	ID             string  `json:"id"`
	ParentID       *string `json:"parent_id"`
	SequenceNumber string  `json:"sequence_number"`
}

// fetchItem unwraps a get envelope's item payload.
func fetchItem(env *client.Envelope) (*outlineItem, error) {
	var data struct {
		Item outlineItem `json:"item"`
	}
	if err := env.DataAs(&data); err != nil {
		return nil, err
	}
	return &data.Item, nil
}

// fetchOutline reads one item's parent and sequence label.
func fetchOutline(ctx *testpkg.TestContext, id string) (*outlineItem, error) {
	env, err := ctx.Invoke("jive_get_work_item", map[string]interface{}{
		"action":       "get",
		"work_item_id": id,
	})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("get %s failed: %s", id, env.Error)
	}
	return fetchItem(env)
}

// GetReorderTests covers jive_reorder_work_items: sibling reordering, moves
// across parents, swaps, and label recalculation.
func GetReorderTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_reorder_siblings",
			Description: "Listed siblings lead the new order and unlisted ones keep their relative place",
			Tags:        []string{"reorder"},
			Covers:      []string{"reorder:siblings"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				feature, err := ctx.CreateWorkItem("feature", uniqueTitle("Search facets"))
				if err != nil {
					return err
				}
				var stories []string
				for _, title := range []string{"Facet model", "Facet API", "Facet UI"} {
					id, err := ctx.CreateChildWorkItem("story", uniqueTitle(title), feature)
					if err != nil {
						return err
					}
					stories = append(stories, id)
				}
				parent, err := fetchOutline(ctx, feature)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":        "reorder",
					"work_item_ids": []string{stories[2], stories[0]},
					"parent_id":     feature,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "reorder should succeed")
				var page struct {
					Items []outlineItem `json:"items"`
					Total int           `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return fmt.Errorf("reorder result: %w", err)
				}
				ctx.Assertions.AssertEqual(3, page.Total, "all siblings come back")
				if len(page.Items) == 3 {
					ctx.Assertions.AssertEqual(stories[2], page.Items[0].ID, "first listed item leads")
					ctx.Assertions.AssertEqual(stories[0], page.Items[1].ID, "second listed item follows")
					ctx.Assertions.AssertEqual(stories[1], page.Items[2].ID, "unlisted sibling trails")
					ctx.Assertions.AssertEqual(parent.SequenceNumber+".1", page.Items[0].SequenceNumber, "labels renumber from 1")
					ctx.Assertions.AssertEqual(parent.SequenceNumber+".2", page.Items[1].SequenceNumber, "second label")
					ctx.Assertions.AssertEqual(parent.SequenceNumber+".3", page.Items[2].SequenceNumber, "third label")
				} else {
					ctx.Assertions.Fail(fmt.Sprintf("expected 3 items, got %d", len(page.Items)))
				}

				// Items under different parents cannot be ordered together.
				env, err = ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":        "reorder",
					"work_item_ids": []string{stories[0], feature},
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "INVALID_HIERARCHY", "mixed parents are rejected")

				env, err = ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":        "reorder",
					"work_item_ids": []string{stories[0], stories[0]},
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "duplicate ids are rejected")
				return nil
			},
		},
		{
			Name:        "test_move_between_parents",
			Description: "Moving an item renumbers both the old and the new sibling lists",
			Tags:        []string{"reorder"},
			Covers:      []string{"reorder:move"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				source, err := ctx.CreateWorkItem("feature", uniqueTitle("Import flow"))
				if err != nil {
					return err
				}
				target, err := ctx.CreateWorkItem("feature", uniqueTitle("Export flow"))
				if err != nil {
					return err
				}
				mover, err := ctx.CreateChildWorkItem("story", uniqueTitle("Shared validation"), source)
				if err != nil {
					return err
				}
				resident, err := ctx.CreateChildWorkItem("story", uniqueTitle("Export mapping"), target)
				if err != nil {
					return err
				}
				targetItem, err := fetchOutline(ctx, target)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":        "move",
					"work_item_id":  mover,
					"new_parent_id": target,
					"position":      0,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "move should succeed")
				var moved outlineItem
				if err := env.DataAs(&moved); err != nil {
					return fmt.Errorf("moved item: %w", err)
				}
				if moved.ParentID == nil {
					ctx.Assertions.Fail("moved item has no parent")
				} else {
					ctx.Assertions.AssertEqual(target, *moved.ParentID, "item sits under the new parent")
				}
				ctx.Assertions.AssertEqual(targetItem.SequenceNumber+".1", moved.SequenceNumber, "position 0 takes the first slot")

				displaced, err := fetchOutline(ctx, resident)
				if err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(targetItem.SequenceNumber+".2", displaced.SequenceNumber, "existing child shifts down")

				// Omitting new_parent_id detaches the item to the top level.
				env, err = ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":       "move",
					"work_item_id": mover,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "move to root should succeed")
				var detached outlineItem
				if err := env.DataAs(&detached); err != nil {
					return fmt.Errorf("detached item: %w", err)
				}
				ctx.Assertions.AssertTrue(detached.ParentID == nil, "detached item has no parent")
				ctx.Assertions.AssertNotContains(detached.SequenceNumber, ".", "top-level labels have no dot")

				// A story cannot contain a feature.
				env, err = ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":        "move",
					"work_item_id":  source,
					"new_parent_id": resident,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "INVALID_HIERARCHY", "type rules hold during moves")
				return nil
			},
		},
		{
			Name:        "test_swap_siblings",
			Description: "Swapping exchanges outline labels between two items under the same parent",
			Tags:        []string{"reorder"},
			Covers:      []string{"reorder:swap"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				feature, err := ctx.CreateWorkItem("feature", uniqueTitle("Billing rules"))
				if err != nil {
					return err
				}
				first, err := ctx.CreateChildWorkItem("story", uniqueTitle("Proration"), feature)
				if err != nil {
					return err
				}
				second, err := ctx.CreateChildWorkItem("story", uniqueTitle("Refunds"), feature)
				if err != nil {
					return err
				}
				firstBefore, err := fetchOutline(ctx, first)
				if err != nil {
					return err
				}
				secondBefore, err := fetchOutline(ctx, second)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":       "swap",
					"work_item_id": first,
					"swap_with_id": second,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "swap should succeed")
				var page struct {
					Items []outlineItem `json:"items"`
					Total int           `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return fmt.Errorf("swap result: %w", err)
				}
				ctx.Assertions.AssertEqual(2, page.Total, "both items come back")
				for _, item := range page.Items {
					switch item.ID {
					case first:
						ctx.Assertions.AssertEqual(secondBefore.SequenceNumber, item.SequenceNumber, "first took the second's label")
					case second:
						ctx.Assertions.AssertEqual(firstBefore.SequenceNumber, item.SequenceNumber, "second took the first's label")
					default:
						ctx.Assertions.Fail("swap returned an unrelated item: " + item.ID)
					}
				}

				env, err = ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":       "swap",
					"work_item_id": first,
					"swap_with_id": first,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "self swap is rejected")

				env, err = ctx.Invoke("jive_reorder_work_items", map[string]interface{}{
					"action":       "swap",
					"work_item_id": first,
					"swap_with_id": feature,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "INVALID_HIERARCHY", "cross-parent swap is rejected")
				return nil
			},
		},
		{
			Name:        "test_recalculate_action",
			Description: "The recalculate action closes outline gaps like a sequence regeneration",
			Tags:        []string{"reorder", "sequence"},
			Covers:      []string{"reorder:recalculate"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ns := uniqueNamespace("jive-recalc")
				var ids []string
				for _, title := range []string{"Alpha", "Beta"} {
					id, err := createInNamespace(ctx, ns, "task", title)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				defer func() {
					for _, id := range ids {
						deleteInNamespace(ctx, ns, id)
					}
				}()

				env, err := ctx.Invoke("jive_manage_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "delete",
					"work_item_id": ids[0],
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "delete should succeed")

				env, err = ctx.Invoke("jive_reorder_work_items", withNamespace(ns, map[string]interface{}{
					"action": "recalculate",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "recalculate should succeed")
				var report struct {
					Total   int `json:"total"`
					Updated int `json:"updated"`
				}
				if err := env.DataAs(&report); err != nil {
					return fmt.Errorf("recalculate report: %w", err)
				}
				ctx.Assertions.AssertEqual(1, report.Total, "one item survives")
				ctx.Assertions.AssertEqual(1, report.Updated, "the survivor renumbers to 1")

				env, err = ctx.Invoke("jive_get_work_item", withNamespace(ns, map[string]interface{}{
					"action":       "get",
					"work_item_id": ids[1],
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "survivor is readable")
				survivor, err := fetchItem(env)
				if err != nil {
					return fmt.Errorf("survivor: %w", err)
				}
				ctx.Assertions.AssertEqual("1", survivor.SequenceNumber, "gap closed at the top level")
				return nil
			},
		},
	}
}
