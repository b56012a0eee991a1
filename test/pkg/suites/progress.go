package suites

import (
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// GetProgressTests covers jive_track_progress: tracking, parent rollups,
// reports, analytics, and milestones.
func GetProgressTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_track_progress_rollup",
			Description: "Tracking child progress rolls averages and status up the parent chain",
			Tags:        []string{"progress"},
			Covers:      []string{"progress:track"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				storyID, err := ctx.CreateWorkItem("story", uniqueTitle("Rollup story"))
				if err != nil {
					return err
				}
				first, err := ctx.CreateChildWorkItem("task", uniqueTitle("Rollup first"), storyID)
				if err != nil {
					return err
				}
				second, err := ctx.CreateChildWorkItem("task", uniqueTitle("Rollup second"), storyID)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action":       "track",
					"work_item_id": first,
					"progress":     100,
					"notes":        "merged and deployed",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Tracking 100% should succeed")

				var item struct {
					Status      string     `json:"status"`
					Progress    float64    `json:"progress_percentage"`
					CompletedAt *time.Time `json:"completed_at"`
				}
				if err := env.DataAs(&item); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual("completed", item.Status, "Full progress should complete the task")
				ctx.Assertions.AssertTrue(item.CompletedAt != nil, "Completion should be timestamped")

				env, err = ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action":       "track",
					"work_item_id": second,
					"progress":     50,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Tracking 50% should succeed")
				if err := env.DataAs(&item); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual("in_progress", item.Status, "Partial progress should start the task")

				// The parent's progress is the mean of its children.
				env, err = ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"work_item_id": storyID,
				})
				if err != nil {
					return err
				}
				var data struct {
					Item struct {
						Status   string  `json:"status"`
						Progress float64 `json:"progress_percentage"`
					} `json:"item"`
				}
				if err := env.DataAs(&data); err != nil {
					return err
				}
				ctx.Assertions.AssertFloatNear(data.Item.Progress, 75, 0.01, "Story progress should be the children's mean")
				ctx.Assertions.AssertEqual("in_progress", data.Item.Status, "Story should be in progress")
				return nil
			},
		},

		{
			Name:        "test_progress_status_history",
			Description: "status returns the item with its tracked history",
			Tags:        []string{"progress"},
			Covers:      []string{"progress:status"},
			Timeout:     20 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				id, err := ctx.CreateWorkItem("task", uniqueTitle("History task"))
				if err != nil {
					return err
				}

				for _, pct := range []int{25, 60} {
					env, err := ctx.Invoke("jive_track_progress", map[string]interface{}{
						"action":       "track",
						"work_item_id": id,
						"progress":     pct,
						"notes":        "checkpoint",
					})
					if err != nil {
						return err
					}
					ctx.Assertions.AssertSuccess(env, "Tracking should succeed")
				}

				env, err := ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action":       "status",
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Status should succeed")

				var status struct {
					Item struct {
						Progress float64 `json:"progress_percentage"`
					} `json:"item"`
					History []struct {
						Action  string `json:"action"`
						Details string `json:"details"`
					} `json:"history"`
				}
				if err := env.DataAs(&status); err != nil {
					return err
				}
				ctx.Assertions.AssertFloatNear(status.Item.Progress, 60, 0.01, "Latest progress should win")
				ctx.Assertions.AssertGreaterOrEqual(len(status.History), 2, "Both checkpoints should be recorded")
				return nil
			},
		},

		{
			Name:        "test_progress_report_and_analytics",
			Description: "report and analytics aggregate the namespace",
			Tags:        []string{"progress", "report"},
			Covers:      []string{"progress:report", "progress:analytics"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				id, err := ctx.CreateWorkItem("task", uniqueTitle("Report fixture"))
				if err != nil {
					return err
				}
				env, err := ctx.Invoke("jive_track_progress", map[string]interface{}{
					"work_item_id": id,
					"progress":     100,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Completing the fixture should succeed")

				env, err = ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action": "report",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Report should succeed")

				var report struct {
					TotalItems     int            `json:"total_items"`
					ByStatus       map[string]int `json:"by_status"`
					CompletionRate float64        `json:"completion_rate"`
				}
				if err := env.DataAs(&report); err != nil {
					return err
				}
				ctx.Assertions.AssertGreaterOrEqual(report.TotalItems, 1, "Report should count the fixture")
				ctx.Assertions.AssertGreaterOrEqual(report.ByStatus["completed"], 1, "Report should count the completion")
				ctx.Assertions.AssertTrue(report.CompletionRate > 0, "Completion rate should be positive")

				env, err = ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action": "analytics",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Analytics should succeed")

				var analytics struct {
					CompletedLast7Days int     `json:"completed_last_7_days"`
					VelocityPerDay     float64 `json:"velocity_per_day"`
				}
				if err := env.DataAs(&analytics); err != nil {
					return err
				}
				ctx.Assertions.AssertGreaterOrEqual(analytics.CompletedLast7Days, 1, "The fresh completion should count")
				ctx.Assertions.AssertTrue(analytics.VelocityPerDay > 0, "Velocity should be positive")
				return nil
			},
		},

		{
			Name:        "test_milestones",
			Description: "milestone tags items and lists them back",
			Tags:        []string{"progress", "milestone"},
			Covers:      []string{"progress:milestone"},
			Timeout:     20 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				id, err := ctx.CreateWorkItem("epic", uniqueTitle("Launch"))
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action":       "milestone",
					"work_item_id": id,
					"target_date":  "2026-12-31",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Setting a milestone should succeed")

				var item struct {
					Tags     []string `json:"tags"`
					Metadata string   `json:"metadata"`
				}
				if err := env.DataAs(&item); err != nil {
					return err
				}
				ctx.Assertions.AssertTrue(hasString(item.Tags, "milestone"), "Item should carry the milestone tag")
				ctx.Assertions.AssertContains(item.Metadata, "2026-12-31", "Metadata should record the target date")

				// Bad dates are rejected.
				env, err = ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action":       "milestone",
					"work_item_id": id,
					"target_date":  "31/12/2026",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "VALIDATION_ERROR", "Non-ISO dates should be rejected")

				env, err = ctx.Invoke("jive_track_progress", map[string]interface{}{
					"action": "milestone",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Listing milestones should succeed")

				var list struct {
					Milestones []struct {
						ID string `json:"id"`
					} `json:"milestones"`
					Total int `json:"total"`
				}
				if err := env.DataAs(&list); err != nil {
					return err
				}
				found := false
				for _, m := range list.Milestones {
					if m.ID == id {
						found = true
					}
				}
				ctx.Assertions.AssertTrue(found, "The tagged epic should be listed")
				return nil
			},
		},
	}
}

func hasString(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}
