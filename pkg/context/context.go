// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package context provides timeout helpers for external-command invocations,
// grounded on the teacher's pkg/context but keyed by CLI function name
// instead of HTTP operation type.
package context

import (
	"context"
	"time"
)

// Timeouts is the minimal interface this package needs from pkg/config.Config,
// kept narrow so callers don't have to import config just to derive a context.
type Timeouts interface {
	TimeoutFor(function string) time.Duration
}

// WithFunctionTimeout derives a context carrying the deadline configured for
// the named external CLI function (spec.md §5: stage-in/out default 24h,
// post-run/setup/teardown default 5s).
func WithFunctionTimeout(ctx context.Context, function string, timeouts Timeouts) (context.Context, context.CancelFunc) {
	d := timeouts.TimeoutFor(function)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// DefaultAgentPassTimeout bounds a single background-agent sync pass so a
// stuck external-CLI query cannot stall the agent loop indefinitely.
const DefaultAgentPassTimeout = 2 * time.Minute
