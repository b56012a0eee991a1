package suites

import (
	"fmt"
	"strings"
	"time"

	"github.com/jivehq/jive/test/pkg/client"
	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// GetNamespaceTests covers namespace isolation, session binding, and the
// naming rules.
func GetNamespaceTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_namespace_isolation",
			Description: "Items created in one namespace are invisible from another",
			Tags:        []string{"namespace", "smoke"},
			Covers:      []string{"namespace:isolation"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				nsA := uniqueNamespace("jive-iso-a")
				nsB := uniqueNamespace("jive-iso-b")
				token := uniqueToken()

				id, err := createInNamespace(ctx, nsA, "task", "Tune the "+token+" cache")
				if err != nil {
					return err
				}
				defer deleteInNamespace(ctx, nsA, id)

				env, err := ctx.Invoke("jive_get_work_item", withNamespace(nsB, map[string]interface{}{
					"action":       "get",
					"work_item_id": id,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "WORK_ITEM_NOT_FOUND", "foreign namespace cannot read the item")

				env, err = ctx.Invoke("jive_get_work_item", withNamespace(nsB, map[string]interface{}{
					"action": "list",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "listing an empty namespace succeeds")
				var page struct {
					Total int `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return fmt.Errorf("list result: %w", err)
				}
				ctx.Assertions.AssertEqual(0, page.Total, "fresh namespace holds nothing")

				env, err = ctx.Invoke("jive_search_content", withNamespace(nsB, map[string]interface{}{
					"query":       token,
					"search_type": "keyword",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "searching an empty namespace succeeds")
				var hits searchPage
				if err := env.DataAs(&hits); err != nil {
					return fmt.Errorf("search result: %w", err)
				}
				ctx.Assertions.AssertEqual(0, hits.Total, "search does not cross namespaces")

				env, err = ctx.Invoke("jive_get_work_item", withNamespace(nsA, map[string]interface{}{
					"action":       "get",
					"work_item_id": id,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "home namespace still reads the item")
				return nil
			},
		},
		{
			Name:        "test_session_namespace_binding",
			Description: "A session bound at initialize is pinned to its namespace",
			Tags:        []string{"namespace", "session"},
			Covers:      []string{"namespace:binding"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				bound := uniqueNamespace("jive-bound")

				pinned := client.NewMCPClient(ctx.Client.ServerURL())
				pinned.SetNamespace(bound)
				if err := pinned.Connect(); err != nil {
					return fmt.Errorf("bound connect: %w", err)
				}
				defer func() { _ = pinned.Close() }()

				result, err := pinned.InvokeTool("jive_manage_work_item", map[string]interface{}{
					"action": "create",
					"type":   "task",
					"title":  "Pinned session item",
				})
				if err != nil {
					return err
				}
				env, err := result.Envelope()
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "bound session creates without a namespace argument")
				id := testpkg.ExtractWorkItemID(env)
				ctx.Assertions.AssertNotEmpty(id, "created item has an id")
				defer deleteInNamespace(ctx, bound, id)

				// The item landed in the bound namespace, not the default one.
				env, err = ctx.Invoke("jive_get_work_item", withNamespace(bound, map[string]interface{}{
					"action":       "get",
					"work_item_id": id,
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "item is visible inside the bound namespace")

				env, err = ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"action":       "get",
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "WORK_ITEM_NOT_FOUND", "item is absent from the default namespace")

				// Naming a different namespace on a bound session is refused
				// at the protocol layer.
				_, err = pinned.InvokeTool("jive_get_work_item", map[string]interface{}{
					"action":    "list",
					"namespace": uniqueNamespace("jive-other"),
				})
				ctx.Assertions.AssertError(err, "bound session cannot name another namespace")
				if err != nil {
					ctx.Assertions.AssertContains(err.Error(), "bound", "denial names the binding")
				}

				// Naming the bound namespace explicitly is allowed.
				result, err = pinned.InvokeTool("jive_get_work_item", map[string]interface{}{
					"action":    "list",
					"namespace": bound,
				})
				if err != nil {
					return err
				}
				env, err = result.Envelope()
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "explicitly matching the binding is allowed")
				return nil
			},
		},
		{
			Name:        "test_namespace_name_rules",
			Description: "Invalid and reserved namespace labels are rejected",
			Tags:        []string{"namespace", "validation"},
			Covers:      []string{"namespace:validation"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				// Binding to a malformed label fails the handshake.
				bad := client.NewMCPClient(ctx.Client.ServerURL())
				bad.SetNamespace("not a valid label!")
				err := bad.Connect()
				ctx.Assertions.AssertError(err, "handshake rejects a malformed namespace")
				if err != nil {
					ctx.Assertions.AssertContains(err.Error(), "invalid namespace", "error names the problem")
				}

				// A reserved label fails when the call tries to open it.
				_, err = ctx.Client.InvokeTool("jive_get_work_item", map[string]interface{}{
					"action":    "list",
					"namespace": "admin",
				})
				ctx.Assertions.AssertError(err, "reserved namespace is refused")
				if err != nil {
					ctx.Assertions.AssertTrue(strings.Contains(err.Error(), "reserved"), "error says the label is reserved")
				}

				// Leading punctuation breaks the label pattern.
				_, err = ctx.Client.InvokeTool("jive_get_work_item", map[string]interface{}{
					"action":    "list",
					"namespace": "-leading-hyphen",
				})
				ctx.Assertions.AssertError(err, "malformed label on a call is refused")
				return nil
			},
		},
	}
}
