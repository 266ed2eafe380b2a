package access

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrForbidden matches every AuthorizationError via errors.Is.
var ErrForbidden = errors.New("access denied")

type Reason string

const (
	ReasonUnknownOperation   Reason = "unknown_operation"
	ReasonInvalidStage       Reason = "invalid_stage"
	ReasonRoleDenied         Reason = "role_denied"
	ReasonSubmissionNotFound Reason = "submission_not_found"
	ReasonQueryNotFound      Reason = "query_not_found"
	ReasonQueryMismatch      Reason = "query_mismatch"
)

// AuthorizationError aborts a request before any listing or mutation.
type AuthorizationError struct {
	Operation Operation
	Reason    Reason
	Detail    string
}

func (e *AuthorizationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("access: %s denied: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("access: %s denied: %s: %s", e.Operation, e.Reason, e.Detail)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

func deny(op Operation, reason Reason, format string, args ...any) *AuthorizationError {
	return &AuthorizationError{
		Operation: op,
		Reason:    reason,
		Detail:    fmt.Sprintf(format, args...),
	}
}
