package suites

import (
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// GetHierarchyTests covers tree traversal and dependency edges through
// jive_get_hierarchy.
func GetHierarchyTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_full_hierarchy_tree",
			Description: "full_hierarchy returns the nested subtree with depths",
			Tags:        []string{"hierarchy"},
			Covers:      []string{"hierarchy:get", "hierarchy:full_hierarchy"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				initiativeID, err := ctx.CreateWorkItem("initiative", uniqueTitle("Tree initiative"))
				if err != nil {
					return err
				}
				epicID, err := ctx.CreateChildWorkItem("epic", uniqueTitle("Tree epic"), initiativeID)
				if err != nil {
					return err
				}
				if _, err := ctx.CreateChildWorkItem("feature", uniqueTitle("Tree feature"), epicID); err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":            "get",
					"work_item_id":      initiativeID,
					"relationship_type": "full_hierarchy",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "full_hierarchy should succeed")

				var data struct {
					Tree struct {
						Item struct {
							ID string `json:"id"`
						} `json:"item"`
						Depth    int `json:"depth"`
						Children []struct {
							Item struct {
								ID string `json:"id"`
							} `json:"item"`
							Children []struct {
								Depth int `json:"depth"`
							} `json:"children"`
						} `json:"children"`
					} `json:"tree"`
				}
				if err := env.DataAs(&data); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(initiativeID, data.Tree.Item.ID, "Tree root should be the initiative")
				ctx.Assertions.AssertEqual(0, data.Tree.Depth, "Root depth should be zero")
				ctx.Assertions.AssertEqual(1, len(data.Tree.Children), "Initiative should have one child")
				if len(data.Tree.Children) == 1 {
					ctx.Assertions.AssertEqual(epicID, data.Tree.Children[0].Item.ID, "Child should be the epic")
					ctx.Assertions.AssertEqual(1, len(data.Tree.Children[0].Children), "Epic should have one child")
					if len(data.Tree.Children[0].Children) == 1 {
						ctx.Assertions.AssertEqual(2, data.Tree.Children[0].Children[0].Depth, "Feature sits at depth two")
					}
				}
				return nil
			},
		},

		{
			Name:        "test_children_and_ancestors",
			Description: "get_children and ancestors walk the parent edges both ways",
			Tags:        []string{"hierarchy"},
			Covers:      []string{"hierarchy:get_children", "hierarchy:ancestors"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				epicID, err := ctx.CreateWorkItem("epic", uniqueTitle("Walk epic"))
				if err != nil {
					return err
				}
				featureA, err := ctx.CreateChildWorkItem("feature", uniqueTitle("Walk feature A"), epicID)
				if err != nil {
					return err
				}
				if _, err := ctx.CreateChildWorkItem("feature", uniqueTitle("Walk feature B"), epicID); err != nil {
					return err
				}
				storyID, err := ctx.CreateChildWorkItem("story", uniqueTitle("Walk story"), featureA)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":       "get_children",
					"work_item_id": epicID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "get_children should succeed")

				var page struct {
					Items []struct {
						ID string `json:"id"`
					} `json:"items"`
					Total int `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(2, page.Total, "Epic should have two children")

				env, err = ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":            "get",
					"work_item_id":      storyID,
					"relationship_type": "ancestors",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "ancestors should succeed")
				if err := env.DataAs(&page); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(2, page.Total, "Story should have feature and epic above it")
				return nil
			},
		},

		{
			Name:        "test_dependency_edges",
			Description: "Dependencies can be added, listed, and removed; cycles are rejected",
			Tags:        []string{"hierarchy", "dependencies"},
			Covers:      []string{"hierarchy:add_dependency", "hierarchy:get_dependencies", "hierarchy:remove_dependency"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				storyID, err := ctx.CreateWorkItem("story", uniqueTitle("Dependency story"))
				if err != nil {
					return err
				}
				first, err := ctx.CreateChildWorkItem("task", uniqueTitle("Schema migration"), storyID)
				if err != nil {
					return err
				}
				second, err := ctx.CreateChildWorkItem("task", uniqueTitle("API rollout"), storyID)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":       "add_dependency",
					"work_item_id": second,
					"target_id":    first,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "add_dependency should succeed")

				env, err = ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":       "get_dependencies",
					"work_item_id": second,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "get_dependencies should succeed")

				var deps struct {
					Dependencies []struct {
						ID string `json:"id"`
					} `json:"dependencies"`
					Total int `json:"total"`
				}
				if err := env.DataAs(&deps); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(1, deps.Total, "The rollout should depend on one item")
				if len(deps.Dependencies) == 1 {
					ctx.Assertions.AssertEqual(first, deps.Dependencies[0].ID, "The dependency should be the migration")
				}

				// The reverse edge would loop.
				env, err = ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":       "add_dependency",
					"work_item_id": first,
					"target_id":    second,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "CIRCULAR_DEPENDENCY", "Reverse edge should be rejected as a cycle")

				env, err = ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":       "remove_dependency",
					"work_item_id": second,
					"target_id":    first,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "remove_dependency should succeed")

				env, err = ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":       "get_dependencies",
					"work_item_id": second,
				})
				if err != nil {
					return err
				}
				if err := env.DataAs(&deps); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(0, deps.Total, "Dependencies should be empty after removal")
				return nil
			},
		},

		{
			Name:        "test_dependents_view",
			Description: "dependents lists the items that point at a target",
			Tags:        []string{"hierarchy", "dependencies"},
			Covers:      []string{"hierarchy:dependents"},
			Timeout:     20 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				storyID, err := ctx.CreateWorkItem("story", uniqueTitle("Dependents story"))
				if err != nil {
					return err
				}
				base, err := ctx.CreateChildWorkItem("task", uniqueTitle("Shared library"), storyID)
				if err != nil {
					return err
				}
				userID, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":         "task",
					"title":        uniqueTitle("Library consumer"),
					"parent_id":    storyID,
					"dependencies": []string{base},
				})
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":            "get",
					"work_item_id":      base,
					"relationship_type": "dependents",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "dependents should succeed")

				var page struct {
					Items []struct {
						ID string `json:"id"`
					} `json:"items"`
					Total int `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(1, page.Total, "One item should depend on the library")
				if len(page.Items) == 1 {
					ctx.Assertions.AssertEqual(userID, page.Items[0].ID, "The consumer should be the dependent")
				}
				return nil
			},
		},
	}
}
