package mcp

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/execution"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/namespace"
	"github.com/jivehq/jive/internal/search"
	"github.com/jivehq/jive/internal/storage"
	"github.com/jivehq/jive/internal/syncdata"
	"github.com/jivehq/jive/internal/workitem"
)

// Stable error codes carried in tool result envelopes. Clients branch on
// these; the message text is free to change.
const (
	CodeNotFound           = "WORK_ITEM_NOT_FOUND"
	CodeExecutionNotFound  = "EXECUTION_NOT_FOUND"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeInvalidHierarchy   = "INVALID_HIERARCHY"
	CodeInvalidAction      = "INVALID_ACTION"
	CodeInvalidParams      = "INVALID_PARAMS"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNamespaceInvalid   = "NAMESPACE_INVALID"
	CodeNamespaceNotFound  = "NAMESPACE_NOT_FOUND"
	CodeNamespaceExists    = "NAMESPACE_EXISTS"
	CodeNamespaceProtected = "NAMESPACE_PROTECTED"
	CodeNamespaceDenied    = "NAMESPACE_DENIED"
	CodeBackupNotFound     = "BACKUP_NOT_FOUND"
	CodeBackupCorrupted    = "BACKUP_CORRUPTED"
	CodeNotReady           = "NOT_READY"
	CodeExecutionNotReady  = "EXECUTION_NOT_READY"
	CodeInvalidState       = "INVALID_STATE"
	CodeQueueFull          = "QUEUE_FULL"
	CodeTimeout            = "TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
)

// sensitivePatterns flag error text that must never reach a client verbatim.
var sensitivePatterns = []string{
	"api_key",
	"api key",
	"password",
	"secret",
	"credential",
}

// clientMessage returns the error text safe to place in an envelope. Errors
// behind stable codes carry user-facing messages by construction; anything
// that falls through to CodeInternal is logged in full and replaced.
func clientMessage(err error, code string) string {
	text := err.Error()
	lower := strings.ToLower(text)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			logger.Error("tool error (redacted): %v", err)
			return "internal configuration error"
		}
	}
	if code != CodeInternal {
		return text
	}
	logger.Error("tool error: %v", err)
	if len(text) < 50 && !strings.ContainsAny(text, "/\\") {
		return text
	}
	return "an unexpected error occurred"
}

// codeFor maps an error to its stable envelope code.
func codeFor(err error) string {
	var vErrs validator.ValidationErrors

	switch {
	case errors.Is(err, workitem.ErrNotFound), errors.Is(err, storage.ErrWorkItemNotFound):
		return CodeNotFound
	case errors.Is(err, storage.ErrExecutionNotFound):
		return CodeExecutionNotFound
	case errors.Is(err, workitem.ErrCircularDependency):
		return CodeCircularDependency
	case errors.Is(err, workitem.ErrInvalidHierarchy):
		return CodeInvalidHierarchy
	case errors.Is(err, workitem.ErrInvalidInput),
		errors.Is(err, search.ErrInvalidMode),
		errors.Is(err, syncdata.ErrUnknownFormat),
		errors.Is(err, syncdata.ErrUnknownStrategy),
		errors.Is(err, syncdata.ErrUnknownDirection),
		errors.As(err, &vErrs):
		return CodeValidation
	case errors.Is(err, namespace.ErrDenied):
		return CodeNamespaceDenied
	case errors.Is(err, namespace.ErrInvalidName), errors.Is(err, namespace.ErrReserved):
		return CodeNamespaceInvalid
	case errors.Is(err, namespace.ErrNotFound):
		return CodeNamespaceNotFound
	case errors.Is(err, namespace.ErrProtected):
		return CodeNamespaceProtected
	case errors.Is(err, os.ErrExist):
		return CodeNamespaceExists
	case errors.Is(err, syncdata.ErrBackupNotFound):
		return CodeBackupNotFound
	case errors.Is(err, syncdata.ErrBackupCorrupted):
		return CodeBackupCorrupted
	case errors.Is(err, embedding.ErrNotReady):
		return CodeNotReady
	case errors.Is(err, execution.ErrNotReady):
		return CodeExecutionNotReady
	case errors.Is(err, execution.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, execution.ErrQueueFull):
		return CodeQueueFull
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
