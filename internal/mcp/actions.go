package mcp

import "strings"

// badAction builds the INVALID_ACTION envelope for a missing or unknown
// action discriminator.
func badAction(tool, action string, valid []string) *Result {
	if action == "" {
		return fail(CodeInvalidAction, "%s requires an action; valid actions: %s", tool, strings.Join(valid, ", "))
	}
	return fail(CodeInvalidAction, "unknown action %q for %s; valid actions: %s", action, tool, strings.Join(valid, ", "))
}
