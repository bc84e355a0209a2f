// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
)

// WrapExternal converts an error returned by the external-command runner
// (spec.md §4.5) into a BBError, recording the function name and captured
// stderr the way spec.md §7 requires ("a human-readable state_desc
// including the function name and captured stderr").
func WrapExternal(function string, exitErr error, stderr string) *BBError {
	if exitErr == nil {
		return nil
	}

	if stderrors.Is(exitErr, context.DeadlineExceeded) {
		e := New(KindTimeout, fmt.Sprintf("%s timed out", function))
		e.Function = function
		e.Details = stderr
		e.Cause = exitErr
		return e
	}

	var ee *exec.ExitError
	_ = stderrors.As(exitErr, &ee)

	e := New(KindExternalError, fmt.Sprintf("%s exited with an error", function))
	e.Function = function
	e.Details = stderr
	e.Cause = exitErr
	return e
}

// IsTokenNotFound reports whether stderr matches the teardown "no record of
// this token" case that spec.md §4.2/§7 require be treated as success.
func IsTokenNotFound(stderr string) bool {
	return tokenNotFoundPattern.MatchString(stderr)
}

// NewInvalidRequest builds an invalid_request error (directive parse or
// submission-time syntax failure).
func NewInvalidRequest(message string) *BBError {
	return New(KindInvalidRequest, message)
}

// NewPermissionDenied builds a permission_denied error (allow/deny list or
// persistent-buffer ownership check).
func NewPermissionDenied(message string) *BBError {
	return New(KindPermissionDenied, message)
}

// NewLimitExceeded builds a limit_exceeded error (per-user/account/TRES
// quota).
func NewLimitExceeded(message string) *BBError {
	return New(KindLimitExceeded, message)
}

// NewNoCapacity builds a no_capacity error (transient, reconsidered next
// scheduling tick).
func NewNoCapacity(message string) *BBError {
	return New(KindNoCapacity, message)
}

// NewSnapshotIO builds a snapshot_io error for a failed snapshot write.
func NewSnapshotIO(message string, cause error) *BBError {
	return Wrap(KindSnapshotIO, message, cause)
}
